package store

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// WatchExternalEdits watches the state directory for writes made outside
// this process (e.g. an operator hand-editing a state file) and drops
// the corresponding cache entry so the next read hits disk. This is
// advisory, best-effort invalidation, not a lock: spec.md's single-writer
// assumption per workflow_id still holds, this just keeps a long-lived
// process (the MCP server) from serving stale cached state after an
// out-of-band edit. Returns once ctx is cancelled or the watcher fails
// to start; failures are logged, not fatal, since the store still works
// correctly without it (just with a longer staleness window).
func (s *Store) WatchExternalEdits(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("fsnotify unavailable, external edits will not invalidate cache", "error", err)
		return err
	}
	defer w.Close()

	if err := w.Add(s.stateDir); err != nil {
		log.Warn("could not watch state directory", "dir", s.stateDir, "error", err)
		return err
	}
	log.Debug("watching state directory for external edits", "dir", s.stateDir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				s.invalidate(idFromPath(ev.Name))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("fsnotify watcher error", "error", err)
		}
	}
}

func idFromPath(p string) string {
	base := p
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			base = p[i+1:]
			break
		}
	}
	const suffix = ".json"
	if len(base) > len(suffix) && base[len(base)-len(suffix):] == suffix {
		return base[:len(base)-len(suffix)]
	}
	return base
}
