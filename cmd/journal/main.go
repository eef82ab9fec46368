// Command journal is a terminal front end for the voice journal agent.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Protocol-Lattice/journal-agent/src/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
	userFlag   string
)

var rootCmd = &cobra.Command{
	Use:           "journal",
	Short:         "Voice-first personal journal",
	Long:          "Log notes, ask about past entries and manage your journal from the terminal.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "journal.yaml", "Config file (YAML); missing file uses defaults")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Dotenv file loaded before the config")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User id (default from config)")
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if userFlag != "" {
		cfg.UserID = userFlag
	}
	return cfg, nil
}

// withApp loads the config, builds the app and closes it when fn returns.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
