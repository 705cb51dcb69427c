package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	internal "github.com/ZanzyTHEbar/vox-canvas/voxc"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/config"
)

type rootOptions struct {
	configPath string
	logLevel   string
	session    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           internal.DefaultAppName,
		Short:         "Turn spoken or typed requests into a live HTML page",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Missing env files are fine; real environment variables still apply.
			_ = godotenv.Load(".env", ".env.local")
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")
	cmd.PersistentFlags().StringVarP(&opts.session, "session", "s", "", "session ID or unique prefix (default session when empty)")

	cmd.AddCommand(
		newServeCmd(opts),
		newGenerateCmd(opts),
		newModifyCmd(opts),
		newTranscribeCmd(opts),
		newHistoryCmd(opts),
		newSessionsCmd(opts),
	)

	return cmd
}

// load reads configuration and builds the root logger from it.
func (o *rootOptions) load() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	var logger zerolog.Logger
	if cfg.Pretty || isatty.IsTerminal(os.Stderr.Fd()) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	return logger.Level(level).With().Timestamp().Str("app", internal.DefaultAppName).Logger(), nil
}
