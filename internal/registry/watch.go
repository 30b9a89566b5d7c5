package registry

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce interval between a burst of file events and the reload they trigger.
const reloadDebounce = 200 * time.Millisecond

// Watch reloads the registry whenever alias files change, until ctx is done.
// Reload failures keep the previous snapshot and are logged, not fatal:
// an admin saving a half-written file must not take the gateway down.
func (r *Registry) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(r.dir); err != nil {
		return err
	}
	r.log.Info().Str("dir", r.dir).Msg("watching aliases dir")

	var pending *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(ev.Name))
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if pending == nil {
				pending = time.NewTimer(reloadDebounce)
				fire = pending.C
			} else {
				pending.Reset(reloadDebounce)
			}
		case <-fire:
			pending = nil
			fire = nil
			if err := r.Reload(); err != nil {
				r.log.Warn().Err(err).Msg("alias reload failed, keeping previous registry")
				continue
			}
			r.log.Info().Int("aliases", r.Len()).Msg("registry reloaded")
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.Warn().Err(err).Msg("alias watcher error")
		}
	}
}
