package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ilearnhow/lessongen/pkg/config"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "lessongen",
		Short:         "lessongen: rate-limited, budget-capped lesson content generation",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to lessongen config file (defaults apply when empty)")

	root.AddCommand(
		newServeCmd(),
		newGenerateCmd(),
		newResumeCmd(),
		newVariantCmd(),
		newCacheCmd(),
		newBudgetCmd(),
		newRateLimitCmd(),
		newCostCmd(),
		newAttemptsCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger writes to stderr; stdout belongs to command output and MCP.
func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
