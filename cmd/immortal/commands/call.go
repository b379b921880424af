package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/immortal-app/immortal/internal/diag"
	"github.com/immortal-app/immortal/internal/metrics"
	"github.com/immortal-app/immortal/pkg/audioio"
	"github.com/immortal-app/immortal/pkg/live"
	"github.com/immortal-app/immortal/pkg/persona"
	"github.com/immortal-app/immortal/pkg/realtime"
)

var callCmd = &cobra.Command{
	Use:   "call <persona>",
	Short: "Start a live voice call with a persona",
	Long:  "call connects the microphone and speaker to a live session with the\nnamed persona. Press q or ESC to hang up, r to redial.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	if cfg.APIKey == "" {
		return errors.New("IMMORTAL_API_KEY is not set")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	desc, err := store.Resolve(args[0])
	if err != nil {
		return err
	}
	instructions := persona.BuildInstructions(desc)

	mx := metrics.New()
	if cfg.DiagAddr != "" {
		srv := diag.New(cfg.DiagAddr, mx.Handler(), slog.Default())
		srv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	liveCfg := live.DefaultConfig()
	liveCfg.Sensitivity = cfg.Sensitivity
	liveCfg.SpeakingPulse = cfg.SpeakingPulse
	liveCfg.TrackEnvelope = cfg.TrackEnvelope
	liveCfg.HandshakeTimeout = cfg.HandshakeTimeout

	clientOpts := []realtime.Option{
		realtime.WithClientInfo("immortal", version),
		realtime.WithHandshakeTimeout(cfg.HandshakeTimeout),
	}
	if cfg.RealtimeURL != "" {
		clientOpts = append(clientOpts, realtime.WithURL(cfg.RealtimeURL))
	}
	client := realtime.NewClient(cfg.APIKey, clientOpts...)

	screen := newCallScreen(desc.Name)
	build := func() (*live.Session, error) {
		player, err := audioio.NewPlayer(liveCfg.PlaybackRateHz)
		if err != nil {
			return nil, err
		}
		return live.NewSession(instructions, live.Options{
			Config: liveCfg,
			Dialer: live.RealtimeDialer{
				Client: client,
				Setup:  realtime.Setup{Voice: desc.VoiceStyle},
			},
			Capture:     audioio.NewCapture(liveCfg.CaptureRateHz, liveCfg.FrameSamples, slog.Default()),
			Sink:        player,
			OnStatus:    screen.SetStatus,
			OnIntensity: screen.SetLevel,
			Recorder:    mx,
		}), nil
	}

	keys, restoreTerm, err := watchKeys()
	if err != nil {
		return err
	}
	defer restoreTerm()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	mgr := live.NewManager()
	screen.Start()
	defer screen.Stop()

	sess, err := mgr.Start(cmd.Context(), build)
	if err != nil {
		return err
	}
	for {
		select {
		case <-sess.Done():
			// Remote hangup or failure; the screen already shows why.
			time.Sleep(150 * time.Millisecond)
			if sess.State() == live.StateFailed {
				return errors.New("call failed")
			}
			return nil
		case k := <-keys:
			switch k {
			case 'q', 'Q', 27, 3:
				mgr.Stop()
				return nil
			case 'r', 'R':
				next, err := mgr.Start(cmd.Context(), build)
				if err != nil {
					return err
				}
				sess = next
			}
		case <-sigCh:
			mgr.Stop()
			return nil
		}
	}
}

// watchKeys puts stdin in raw mode and streams single key bytes. When
// stdin is not a terminal it returns a nil channel, which never fires.
func watchKeys() (<-chan byte, func(), error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, func() {}, nil
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, nil, fmt.Errorf("raw terminal: %w", err)
	}
	ch := make(chan byte, 4)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil || n == 0 {
				return
			}
			select {
			case ch <- buf[0]:
			default:
			}
		}
	}()
	return ch, func() { term.Restore(fd, old) }, nil
}

var (
	nameStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	meterStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("84"))
	trackStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
)

const meterWidth = 24

// callScreen renders a single status line: persona name, connection
// status, and the live intensity meter. It repaints on a timer
// because intensity updates arrive per audio frame.
type callScreen struct {
	mu     sync.Mutex
	name   string
	status string
	level  float64

	stop chan struct{}
	done chan struct{}
}

func newCallScreen(name string) *callScreen {
	return &callScreen{
		name:   name,
		status: live.StateIdle.String(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (c *callScreen) SetStatus(status string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

func (c *callScreen) SetLevel(level float64) {
	c.mu.Lock()
	c.level = level
	c.mu.Unlock()
}

func (c *callScreen) Start() {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.paint()
			}
		}
	}()
}

func (c *callScreen) Stop() {
	select {
	case <-c.stop:
		return
	default:
	}
	close(c.stop)
	<-c.done
	c.paint()
	fmt.Print("\r\n")
}

func (c *callScreen) paint() {
	c.mu.Lock()
	status := c.status
	level := c.level
	c.mu.Unlock()

	style := statusStyle
	switch status {
	case live.StateIdle.String(), live.StateConnecting.String(), live.StateConnected.String(), live.StateDisconnected.String():
	default:
		style = failStyle
	}
	filled := int(level*meterWidth + 0.5)
	if filled > meterWidth {
		filled = meterWidth
	}
	meter := meterStyle.Render(strings.Repeat("█", filled)) +
		trackStyle.Render(strings.Repeat("░", meterWidth-filled))
	fmt.Printf("\r\x1b[2K  %s  %s  %s  %s",
		nameStyle.Render(c.name),
		meter,
		style.Render(status),
		hintStyle.Render("q hang up · r redial"))
}
