// Package sessionstore implements the external Session Store
// collaborator (spec.md §6): one JSON file per session, threading prior
// turns into subsequent prompts. Persistence follows the same
// afero + atomic-write idiom as internal/store.
package sessionstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/jorge-barreto/conclave/internal/conclaveerr"
	"github.com/jorge-barreto/conclave/internal/logging"
	"github.com/jorge-barreto/conclave/internal/pipeline"
)

var log = logging.New("sessionstore")

// MaxAge is how long a session file may sit unused before
// CleanupOldSessions removes it.
const MaxAge = 30 * 24 * time.Hour

type sessionFile struct {
	AgentType string              `json:"agent_type"`
	UpdatedAt time.Time           `json:"updated_at"`
	History   []pipeline.SessionEntry `json:"history"`
}

// Store is a filesystem-backed pipeline.SessionStore.
type Store struct {
	Fs  afero.Fs
	Dir string
}

// New constructs a Store rooted at dir (created on first write).
func New(fs afero.Fs, dir string) *Store {
	return &Store{Fs: fs, Dir: dir}
}

var _ pipeline.SessionStore = (*Store)(nil)

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.Dir, sessionID+".json")
}

// LoadSession returns the session's history, or (nil, false, nil) if
// no session file exists yet.
func (s *Store) LoadSession(ctx context.Context, sessionID, agentType string) ([]pipeline.SessionEntry, bool, error) {
	data, err := afero.ReadFile(s.Fs, s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, conclaveerr.Storage("reading session file", err)
	}
	var sf sessionFile
	if err := json.Unmarshal(data, &sf); err != nil {
		log.Warn("corrupt session file, treating as empty history", "session_id", sessionID, "error", err)
		return nil, false, nil
	}
	return sf.History, len(sf.History) > 0, nil
}

// SaveSession appends one (request, response) turn to the session,
// creating it if necessary.
func (s *Store) SaveSession(ctx context.Context, sessionID, request, response string) error {
	if err := s.Fs.MkdirAll(s.Dir, 0o755); err != nil {
		return conclaveerr.Storage("creating session directory", err)
	}

	var sf sessionFile
	if data, err := afero.ReadFile(s.Fs, s.path(sessionID)); err == nil {
		_ = json.Unmarshal(data, &sf)
	}
	sf.UpdatedAt = time.Now().UTC()
	sf.History = append(sf.History, pipeline.SessionEntry{Request: request, Response: response})

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return conclaveerr.Storage("encoding session", err)
	}
	tmp := s.path(sessionID) + ".tmp"
	if err := afero.WriteFile(s.Fs, tmp, data, 0o644); err != nil {
		return conclaveerr.Storage("writing session file", err)
	}
	if err := s.Fs.Rename(tmp, s.path(sessionID)); err != nil {
		_ = s.Fs.Remove(tmp)
		return conclaveerr.Storage("writing session file", err)
	}
	return nil
}

// CleanupOldSessions deletes session files whose last update exceeds
// MaxAge. Intended to run best-effort, concurrently with operations, and
// must never block them (spec.md §5): callers should invoke this from a
// background goroutine.
func (s *Store) CleanupOldSessions(ctx context.Context) error {
	entries, err := afero.ReadDir(s.Fs, s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return conclaveerr.Storage("listing session directory", err)
	}

	cutoff := time.Now().Add(-MaxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if e.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.Dir, e.Name())
		if err := s.Fs.Remove(path); err != nil {
			log.Warn("could not remove aged session file", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info("cleaned up aged sessions", "removed", removed)
	}
	return nil
}

// RunCleanupLoop runs CleanupOldSessions on interval until ctx is
// cancelled. Meant to be launched as a background goroutine at process
// start.
func (s *Store) RunCleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.CleanupOldSessions(ctx); err != nil {
				log.Warn("session cleanup failed", "error", err)
			}
		}
	}
}
