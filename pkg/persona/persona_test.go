package persona

import (
	"errors"
	"strings"
	"testing"
)

func TestDescriptor_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		d       *Descriptor
		wantErr bool
	}{
		{"minimal", &Descriptor{Name: "Ada"}, false},
		{"full", &Descriptor{
			Name:         "Ada",
			Relationship: "grandmother",
			Traits:       []string{"dry humor", "patient"},
			Memories:     []string{"the lake house summers"},
		}, false},
		{"nil", nil, true},
		{"empty name", &Descriptor{}, true},
		{"whitespace name", &Descriptor{Name: "   "}, true},
		{"empty trait", &Descriptor{Name: "Ada", Traits: []string{"kind", " "}}, true},
		{"empty memory", &Descriptor{Name: "Ada", Memories: []string{""}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.d.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Fatalf("err = %v, want ErrInvalid", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v, want nil", err)
			}
		})
	}
}

func TestBuildInstructions_FullDescriptor(t *testing.T) {
	t.Parallel()

	d := &Descriptor{
		Name:         "Moira",
		Relationship: "older sister",
		Traits:       []string{"sarcastic", "fiercely loyal"},
		VoiceStyle:   "fast, with a Dublin accent",
		Memories:     []string{"the broken-down van in Donegal", "dad's terrible puns"},
		Instructions: "  Bring up the van if the conversation stalls.  ",
	}
	got := BuildInstructions(d)

	for _, want := range []string{
		"You are Moira, on a live voice call",
		"You are the user's older sister.",
		"Personality: sarcastic, fiercely loyal.",
		"Speaking style: fast, with a Dublin accent.",
		"- the broken-down van in Donegal",
		"- dad's terrible puns",
		"Bring up the van if the conversation stalls.",
		"Stay in character.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("instructions missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "  Bring up") {
		t.Error("custom instructions not trimmed")
	}
}

func TestBuildInstructions_MinimalDescriptor(t *testing.T) {
	t.Parallel()

	got := BuildInstructions(&Descriptor{Name: "Ada"})
	if !strings.HasPrefix(got, "You are Ada, on a live voice call") {
		t.Fatalf("instructions = %q", got)
	}
	if strings.Contains(got, "Personality:") {
		t.Error("empty traits should not render a personality line")
	}
	if strings.Contains(got, "remember") {
		t.Error("empty memories should not render a memories section")
	}
	if !strings.Contains(got, "never mention being an AI") {
		t.Error("missing the character guard line")
	}
}
