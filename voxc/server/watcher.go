package server

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	internal "github.com/ZanzyTHEbar/vox-canvas/voxc"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 100 * time.Millisecond

// SlotWatcher tells preview clients to reload when a slot file changes on
// disk, including edits made outside this process.
type SlotWatcher struct {
	watcher   *fsnotify.Watcher
	outputDir string
	hub       *PreviewHub
	logger    zerolog.Logger

	mu      sync.Mutex
	watched map[string]struct{}
	last    map[string]time.Time
}

func NewSlotWatcher(outputDir string, hub *PreviewHub, logger zerolog.Logger) (*SlotWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	sw := &SlotWatcher{
		watcher:   w,
		outputDir: filepath.Clean(outputDir),
		hub:       hub,
		logger:    logger.With().Str("component", "slot_watcher").Logger(),
		watched:   make(map[string]struct{}),
		last:      make(map[string]time.Time),
	}
	return sw, nil
}

// Watch adds the directory holding slotPath. Watching the same directory twice is a no-op.
func (sw *SlotWatcher) Watch(slotPath string) error {
	dir := filepath.Dir(filepath.Clean(slotPath))

	sw.mu.Lock()
	defer sw.mu.Unlock()

	if _, ok := sw.watched[dir]; ok {
		return nil
	}
	if err := sw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	sw.watched[dir] = struct{}{}
	sw.logger.Debug().Str("dir", dir).Msg("watching slot directory")
	return nil
}

// Run forwards slot changes until ctx is done.
func (sw *SlotWatcher) Run(ctx context.Context) error {
	defer sw.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return nil
			}
			sw.handle(ev)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return nil
			}
			sw.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (sw *SlotWatcher) handle(ev fsnotify.Event) {
	if filepath.Base(ev.Name) != internal.DefaultSlotName {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return
	}

	sessionID := sw.sessionFor(ev.Name)

	sw.mu.Lock()
	now := time.Now()
	if now.Sub(sw.last[sessionID]) < reloadDebounce {
		sw.mu.Unlock()
		return
	}
	sw.last[sessionID] = now
	sw.mu.Unlock()

	sw.hub.Broadcast(sessionID, PreviewMessage{Type: "reload", SessionID: sessionID})
}

// sessionFor mirrors the factory's slot layout: output_dir/output.html for the
// default session, output_dir/sessions/<id>/output.html otherwise.
func (sw *SlotWatcher) sessionFor(path string) string {
	dir := filepath.Dir(filepath.Clean(path))
	if dir == sw.outputDir {
		return internal.DefaultSessionID
	}
	return filepath.Base(dir)
}
