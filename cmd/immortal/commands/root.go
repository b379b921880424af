// Package commands implements the immortal CLI.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/immortal-app/immortal/internal/config"
	"github.com/immortal-app/immortal/pkg/persona"
)

const version = "0.1.0"

var (
	cfg config.Config

	flagDataDir string

	rootCmd = &cobra.Command{
		Use:     "immortal",
		Short:   "Live voice calls with personas you define",
		Long:    "immortal holds live voice calls with a persona you describe:\nwho they are, how they speak, and what the two of you remember.",
		Version: version,

		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			godotenv.Load()
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			if flagDataDir != "" {
				cfg.DataDir = flagDataDir
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: cfg.LogLevel,
			})))
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "override the data directory")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openStore() (*persona.Store, error) {
	return persona.Open(filepath.Join(cfg.DataDir, "personas"))
}
