package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/webpilot-ai/webpilot/internal/config"
)

var (
	cfgFile   string
	homeFlag  string
	debugMode bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "webpilot",
	Short: "WebPilot - autonomous browser task agent",
	Long: `WebPilot executes natural-language browser tasks autonomously:
it plans the task, decides and executes browser actions, recovers from
failures, and asks for human input only when it cannot proceed safely.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// loadConfig runs before any command, resolving the config file from the
// --config flag, WEBPILOT_HOME, or ~/.webpilot. A missing file falls back to
// defaults rather than failing.
func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" || cmd.Name() == "help" {
		return nil
	}

	path := cfgFile
	if path == "" {
		home := homeFlag
		if home == "" {
			home = os.Getenv("WEBPILOT_HOME")
		}
		if home == "" {
			if userHome, err := os.UserHomeDir(); err == nil {
				home = filepath.Join(userHome, ".webpilot")
			} else {
				home = filepath.Join(os.TempDir(), "webpilot")
			}
		}
		path = filepath.Join(home, "config.yaml")
	}

	loaded, err := config.NewLoader(config.NewValidator()).LoadWithDefaults(path)
	if err != nil {
		return err
	}
	cfg = loaded

	logger = newLogger(cfg.Logging)
	slog.SetDefault(logger)
	return nil
}

// newLogger builds the process logger from the logging section. --debug
// forces debug level regardless of configuration.
func newLogger(lc config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debugMode {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if lc.Format == "text" {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default $WEBPILOT_HOME/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&homeFlag, "home", "", "webpilot home directory (default ~/.webpilot)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}
