package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/immortal-app/immortal/internal/devserver"
)

var devserverAddr string

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local stand-in for the realtime endpoint",
	Long: "devserver serves the realtime voice protocol on localhost, answering\n" +
		"every turn with a synthesized tone phrase. Point a call at it:\n\n" +
		"  IMMORTAL_REALTIME_URL=ws://127.0.0.1:8787/v1/realtime immortal call <persona>",
	Args: cobra.NoArgs,
	RunE: runDevserver,
}

func init() {
	devserverCmd.Flags().StringVar(&devserverAddr, "addr", "127.0.0.1:8787", "listen address")
	rootCmd.AddCommand(devserverCmd)
}

func runDevserver(cmd *cobra.Command, args []string) error {
	srv := devserver.New(devserver.DefaultConfig(), slog.Default())
	httpSrv := &http.Server{
		Addr:              devserverAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
			return
		}
		listenErr <- nil
	}()

	slog.Info("devserver listening", "addr", devserverAddr)
	fmt.Printf("realtime endpoint: ws://%s/v1/realtime\n", devserverAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-cmd.Context().Done():
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-listenErr; err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
