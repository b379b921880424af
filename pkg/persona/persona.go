// Package persona defines who the user talks to: the descriptor, the
// instruction text built from it, and local storage.
package persona

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalid = errors.New("persona: invalid descriptor")

// Descriptor is everything that defines a persona. A live session takes
// an instruction snapshot built from it; edits after a call starts do
// not reach that call.
type Descriptor struct {
	ID           string    `json:"id" yaml:"id,omitempty"`
	Name         string    `json:"name" yaml:"name"`
	Relationship string    `json:"relationship,omitempty" yaml:"relationship,omitempty"`
	Traits       []string  `json:"traits,omitempty" yaml:"traits,omitempty"`
	VoiceStyle   string    `json:"voice_style,omitempty" yaml:"voice_style,omitempty"`
	Memories     []string  `json:"memories,omitempty" yaml:"memories,omitempty"`
	Instructions string    `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

func (d *Descriptor) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil", ErrInvalid)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	for i, t := range d.Traits {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: traits[%d] is empty", ErrInvalid, i)
		}
	}
	for i, m := range d.Memories {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("%w: memories[%d] is empty", ErrInvalid, i)
		}
	}
	return nil
}

// BuildInstructions renders the descriptor as the free-text system
// instructions the realtime session starts with.
func BuildInstructions(d *Descriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, on a live voice call with the user.", d.Name)
	if d.Relationship != "" {
		fmt.Fprintf(&b, " You are the user's %s.", d.Relationship)
	}
	b.WriteString("\n")
	if len(d.Traits) > 0 {
		fmt.Fprintf(&b, "\nPersonality: %s.\n", strings.Join(d.Traits, ", "))
	}
	if d.VoiceStyle != "" {
		fmt.Fprintf(&b, "Speaking style: %s.\n", d.VoiceStyle)
	}
	if len(d.Memories) > 0 {
		b.WriteString("\nThings the two of you remember:\n")
		for _, m := range d.Memories {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	if d.Instructions != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(d.Instructions))
		b.WriteString("\n")
	}
	b.WriteString("\nStay in character. This is spoken conversation: keep replies short, warm, and natural, and never mention being an AI or reading instructions.")
	return b.String()
}
