package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	internal "github.com/ZanzyTHEbar/vox-canvas/voxc"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/config"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/db"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/transcription"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg         *config.Config
	logger      zerolog.Logger
	conn        *sql.DB
	factory     *harness.Factory
	registry    *harness.SessionRegistry
	transcriber transcription.Transcriber
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if cfg.App.JournalBackend == "libsql" {
		conn, err := db.Open(cfg.App.Database.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal database: %w", err)
		}
		a.conn = conn
	}

	a.factory = harness.NewFactory(cfg, a.conn, logger)

	provider, err := a.factory.CreateProvider()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.registry, err = a.factory.CreateRegistry(provider)
	if err != nil {
		a.Close()
		return nil, err
	}

	if err := a.rehydrate(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.transcriber, err = transcription.New(cfg, a.factory.CreateCache(), logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// rehydrate opens every journaled session plus the default one.
func (a *app) rehydrate(ctx context.Context) error {
	journal, err := a.factory.CreateJournal()
	if err != nil {
		return err
	}

	summaries, err := journal.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list journaled sessions: %w", err)
	}

	for _, s := range summaries {
		if _, err := a.registry.Open(ctx, s.ID); err != nil {
			return err
		}
	}
	if _, err := a.registry.Open(ctx, internal.DefaultSessionID); err != nil {
		return err
	}

	a.logger.Debug().Int("sessions", len(summaries)).Msg("sessions rehydrated")
	return nil
}

// session resolves a session ID or prefix; empty selects the default session.
func (a *app) session(ctx context.Context, id string) (*harness.Session, error) {
	if id == "" {
		id = internal.DefaultSessionID
	}
	s, err := a.registry.Resolve(id)
	if errors.Is(err, harness.ErrSessionNotFound) {
		return a.registry.Open(ctx, id)
	}
	return s, err
}

func (a *app) Close() {
	if a.factory != nil {
		if err := a.factory.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close harness resources")
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close database")
		}
	}
}
