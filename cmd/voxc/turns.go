package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/vox-canvas/voxc/audio"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness"
)

// runTurn loads the app, resolves the session and runs fn against it.
func runTurn(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app, s *harness.Session) error) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	session, err := a.session(ctx, opts.session)
	if err != nil {
		return err
	}
	return fn(ctx, a, session)
}

func printResult(w io.Writer, sessionID string, res *harness.TurnResult) {
	fmt.Fprintf(w, "session %s revision %d (%s)\n", sessionID, res.Artifact.Revision, res.Strategy)
	if res.Warning != nil {
		fmt.Fprintf(w, "warning: %v\n", res.Warning)
	}
	fmt.Fprintln(w, res.Artifact.Content)
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <text>",
		Short: "Generate a new page from a request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTurn(cmd, opts, func(ctx context.Context, a *app, s *harness.Session) error {
				res, err := s.Generate(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), s.ID, res)
				return nil
			})
		},
	}
}

func newModifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "modify <instruction>",
		Short: "Revise the current page",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTurn(cmd, opts, func(ctx context.Context, a *app, s *harness.Session) error {
				res, err := s.Modify(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), s.ID, res)
				return nil
			})
		},
	}
}

func newTranscribeCmd(opts *rootOptions) *cobra.Command {
	var generate bool

	cmd := &cobra.Command{
		Use:   "transcribe <file>",
		Short: "Transcribe a recording, optionally generating a page from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTurn(cmd, opts, func(ctx context.Context, a *app, s *harness.Session) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}

				clip := audio.Clip{Filename: filepath.Base(args[0]), Data: data}
				if err := audio.NewPolicy(a.cfg.Server.AllowedExtensions).Check(clip); err != nil {
					return err
				}
				clip, err = audio.Normalize(clip)
				if err != nil {
					return err
				}

				text, err := a.transcriber.Transcribe(ctx, clip)
				if err != nil {
					return harness.ClassifyProviderError(a.transcriber.Name(), err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)

				if !generate {
					return nil
				}
				res, err := s.Generate(ctx, text)
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), s.ID, res)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&generate, "generate", "g", false, "generate a page from the transcript")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history [session-prefix]",
		Short: "Print a session's conversation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.session = args[0]
			}
			return runTurn(cmd, opts, func(ctx context.Context, a *app, s *harness.Session) error {
				w := cmd.OutOrStdout()
				for _, t := range s.Memory.Snapshot() {
					fmt.Fprintf(w, "[%d] %s: %s\n", t.Sequence, t.Role, t.Content)
				}
				return nil
			})
		},
	}
}

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List known sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTurn(cmd, opts, func(ctx context.Context, a *app, _ *harness.Session) error {
				w := cmd.OutOrStdout()
				for _, s := range a.registry.List() {
					revision := uint64(0)
					if current, ok := s.Store.Current(); ok {
						revision = current.Revision
					}
					fmt.Fprintf(w, "%s\trevision %d\tturns %d\n", s.ID, revision, s.Memory.Len())
				}
				return nil
			})
		},
	}
}
