package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	internal "github.com/ZanzyTHEbar/vox-canvas/voxc"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and live preview",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			guardrails, err := a.factory.CreateGuardrails()
			if err != nil {
				return err
			}

			srv := server.New(server.Deps{
				Registry:    a.registry,
				Transcriber: a.transcriber,
				Limiter:     a.factory.CreateRateLimiter(),
				Guardrails:  guardrails,
				Config:      cfg.Server,
				UploadDir:   cfg.App.UploadDir,
				Logger:      logger,
			})

			if err := os.MkdirAll(cfg.App.OutputDir, 0o755); err != nil {
				return err
			}
			watcher, err := server.NewSlotWatcher(cfg.App.OutputDir, srv.Hub(), logger)
			if err != nil {
				return err
			}
			for _, s := range a.registry.List() {
				watchSlot(watcher, s.Store.SlotLocation(), logger)
			}
			// Sessions created later get a slot directory on their first commit.
			a.registry.OnCommit(func(sessionID string, _ harness.Artifact) {
				if s, ok := a.registry.Get(sessionID); ok {
					watchSlot(watcher, s.Store.SlotLocation(), logger)
				}
			})

			var wg conc.WaitGroup
			errCh := make(chan error, 2)
			wg.Go(func() {
				if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
					errCh <- err
					stop()
				}
			})
			wg.Go(func() {
				if err := watcher.Run(ctx); err != nil {
					errCh <- err
				}
			})
			wg.Wait()
			close(errCh)

			return <-errCh
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr, default "+internal.DefaultServerAddr+")")
	return cmd
}

func watchSlot(w *server.SlotWatcher, slotPath string, logger zerolog.Logger) {
	if err := w.Watch(slotPath); err != nil {
		// The directory appears with the session's first commit.
		logger.Debug().Err(err).Str("slot", filepath.Dir(slotPath)).Msg("slot not watched yet")
	}
}
