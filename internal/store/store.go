// Package store implements the Workflow State Store (spec.md §4.1): a
// persistent map from workflow_id to WorkflowState, backed by one JSON
// file per workflow, with a bounded process-local cache in front of disk.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"

	"github.com/jorge-barreto/conclave/internal/conclaveerr"
	"github.com/jorge-barreto/conclave/internal/logging"
	"github.com/jorge-barreto/conclave/internal/workflow"
)

var log = logging.New("store")

// defaultCacheSize bounds the in-process cache so a long-lived daemon
// (e.g. the MCP server) does not accumulate one entry per workflow_id
// forever.
const defaultCacheSize = 512

// Store is the C1 Workflow State Store. It is safe for concurrent use
// across distinct workflow_ids; per spec.md §5, a single workflow_id is
// assumed single-writer.
type Store struct {
	fs       afero.Fs
	stateDir string

	mu    sync.Mutex // serializes read-modify-write on a single workflow_id
	cache *lru.Cache[string, *workflow.State]
}

// New creates a Store rooted at stateDir (created if missing). Pass
// afero.NewOsFs() for real disk, or afero.NewMemMapFs() in tests.
func New(fs afero.Fs, stateDir string) (*Store, error) {
	cache, err := lru.New[string, *workflow.State](defaultCacheSize)
	if err != nil {
		return nil, err
	}
	if err := fs.MkdirAll(stateDir, 0o755); err != nil {
		return nil, conclaveerr.Storage("creating state directory", err)
	}
	return &Store{fs: fs, stateDir: stateDir, cache: cache}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.stateDir, id+".json")
}

// readThrough loads a state from cache, falling back to disk on a miss.
// A disk "not found" is not an error here — callers decide whether that
// means AlreadyExists-is-false or NotFound.
func (s *Store) readThrough(id string) (*workflow.State, bool, error) {
	if st, ok := s.cache.Get(id); ok {
		log.Debug("cache hit", "workflow_id", id)
		return st, true, nil
	}
	data, err := afero.ReadFile(s.fs, s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, conclaveerr.Storage("reading state file", err)
	}
	var st workflow.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false, conclaveerr.Storage("parsing state file (corrupt)", err)
	}
	s.cache.Add(id, &st)
	log.Debug("cache miss, loaded from disk", "workflow_id", id)
	return &st, true, nil
}

// writeThrough persists st to disk and updates the cache.
func (s *Store) writeThrough(st *workflow.State) error {
	st.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return conclaveerr.Storage("encoding state", err)
	}
	if err := writeFileAtomic(s.fs, s.path(st.WorkflowID), data, 0o644); err != nil {
		return conclaveerr.Storage("writing state file", err)
	}
	s.cache.Add(st.WorkflowID, st)
	return nil
}

// invalidate drops a cache entry, forcing the next read to hit disk.
// Used by the fsnotify watcher when a state file changes out of band.
func (s *Store) invalidate(id string) {
	s.cache.Remove(id)
	log.Debug("cache invalidated by external edit", "workflow_id", id)
}

// Create makes a new WorkflowState for id. Fails with AlreadyExists
// (NOT_FOUND_* family is for missing; this uses VALIDATION, matching
// spec.md §4.1's "fails with AlreadyExists").
func (s *Store) Create(id, phase string) (*workflow.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok, err := s.readThrough(id); err != nil {
		return nil, err
	} else if ok {
		return nil, conclaveerr.Validation("workflow already exists", map[string]any{"workflow_id": id})
	}

	now := time.Now().UTC()
	st := &workflow.State{
		WorkflowID: id,
		Phase:      phase,
		Iteration:  1,
		Status:     workflow.StatusWorking,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.writeThrough(st); err != nil {
		return nil, err
	}
	log.Info("workflow created", "workflow_id", id, "phase", phase)
	return cloneState(st), nil
}

// Get returns the current state for id, or a NOT_FOUND_WORKFLOW error.
func (s *Store) Get(id string) (*workflow.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *Store) get(id string) (*workflow.State, error) {
	st, ok, err := s.readThrough(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conclaveerr.NotFound("workflow", "workflow not found", map[string]any{"workflow_id": id})
	}
	return cloneState(st), nil
}

// GetOrCreate returns the existing state for id, or creates one at the
// given phase if none exists.
func (s *Store) GetOrCreate(id, phase string) (*workflow.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok, err := s.readThrough(id)
	if err != nil {
		return nil, err
	}
	if ok {
		return cloneState(st), nil
	}
	now := time.Now().UTC()
	st = &workflow.State{
		WorkflowID: id,
		Phase:      phase,
		Iteration:  1,
		Status:     workflow.StatusWorking,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.writeThrough(st); err != nil {
		return nil, err
	}
	return cloneState(st), nil
}

// Save overwrites the stored state wholesale. The caller owns st until
// this call; after it, the store owns the persisted copy.
func (s *Store) Save(st *workflow.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok, err := s.readThrough(st.WorkflowID); err != nil {
		return err
	} else if !ok {
		return conclaveerr.NotFound("workflow", "workflow not found", map[string]any{"workflow_id": st.WorkflowID})
	}
	return s.writeThrough(cloneState(st))
}

// Mutate loads the state for id, applies fn, and persists the result.
// fn may mutate st freely; it must not retain st beyond the call.
// This is the building block for every typed mutation below.
func (s *Store) Mutate(id string, fn func(st *workflow.State) error) (*workflow.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok, err := s.readThrough(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conclaveerr.NotFound("workflow", "workflow not found", map[string]any{"workflow_id": id})
	}
	cp := cloneState(st)
	if err := fn(cp); err != nil {
		return nil, err
	}
	if err := s.writeThrough(cp); err != nil {
		return nil, err
	}
	return cloneState(cp), nil
}

// Update applies a partial update (non-empty fields only) to phase,
// iteration, and status.
type Update struct {
	Phase     string
	Iteration *int
	Status    string
}

// ApplyUpdate performs a partial update of id's state.
func (s *Store) ApplyUpdate(id string, u Update) (*workflow.State, error) {
	return s.Mutate(id, func(st *workflow.State) error {
		if u.Phase != "" {
			st.Phase = u.Phase
		}
		if u.Iteration != nil {
			st.Iteration = *u.Iteration
		}
		if u.Status != "" {
			st.Status = u.Status
		}
		return nil
	})
}

// AddArtifact appends an ArtifactRecord and optionally sets CurrentArtifact.
func (s *Store) AddArtifact(id string, rec workflow.ArtifactRecord) (*workflow.State, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return s.Mutate(id, func(st *workflow.State) error {
		st.Artifacts = append(st.Artifacts, rec)
		st.CurrentArtifact = rec.File
		return nil
	})
}

// AddFeedback appends a FeedbackRecord with Addressed=false.
func (s *Store) AddFeedback(id string, rec workflow.FeedbackRecord) (*workflow.State, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Addressed = false
	return s.Mutate(id, func(st *workflow.State) error {
		st.FeedbackHistory = append(st.FeedbackHistory, rec)
		return nil
	})
}

// MarkFeedbackAddressed sets Addressed=true on every FeedbackRecord in
// the given iteration whose reviewer is in reviewers (empty reviewers
// means "all reviewers in that iteration").
func (s *Store) MarkFeedbackAddressed(id string, iteration int, reviewers ...string) (*workflow.State, error) {
	want := make(map[string]bool, len(reviewers))
	for _, r := range reviewers {
		want[r] = true
	}
	return s.Mutate(id, func(st *workflow.State) error {
		for i := range st.FeedbackHistory {
			fr := &st.FeedbackHistory[i]
			if fr.Iteration != iteration {
				continue
			}
			if len(want) > 0 && !want[fr.Reviewer] {
				continue
			}
			fr.Addressed = true
		}
		return nil
	})
}

// RecordAgentRun appends a new AgentRunRecord (started, not yet
// completed) and returns its index for a later CompleteAgentRun call.
func (s *Store) RecordAgentRun(id string, rec workflow.AgentRunRecord) (*workflow.State, int, error) {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	idx := -1
	st, err := s.Mutate(id, func(st *workflow.State) error {
		st.AgentRuns = append(st.AgentRuns, rec)
		idx = len(st.AgentRuns) - 1
		return nil
	})
	return st, idx, err
}

// CompleteAgentRun terminates the AgentRunRecord at index idx.
func (s *Store) CompleteAgentRun(id string, idx int, success bool, errMsg string) (*workflow.State, error) {
	return s.Mutate(id, func(st *workflow.State) error {
		if idx < 0 || idx >= len(st.AgentRuns) {
			return conclaveerr.NotFound("run", "agent run index out of range",
				map[string]any{"workflow_id": id, "index": idx})
		}
		now := time.Now().UTC()
		st.AgentRuns[idx].CompletedAt = &now
		st.AgentRuns[idx].Success = &success
		st.AgentRuns[idx].Error = errMsg
		return nil
	})
}

// RecordCheckpoint applies the §4.1 checkpoint-decision table and
// appends a CheckpointRecord.
func (s *Store) RecordCheckpoint(id, decision, feedback string) (*workflow.State, error) {
	return s.Mutate(id, func(st *workflow.State) error {
		rec := workflow.CheckpointRecord{
			Iteration: st.Iteration,
			Decision:  decision,
			DecidedAt: time.Now().UTC(),
		}
		switch decision {
		case workflow.DecisionContinue:
			st.Status = workflow.StatusWorking
			st.CheckpointMessage = ""
		case workflow.DecisionIterate:
			st.Iteration++
			st.Status = workflow.StatusWorking
			st.CheckpointMessage = ""
			rec.Feedback = feedback
		case workflow.DecisionApprove:
			st.Status = workflow.StatusComplete
			st.CheckpointMessage = ""
		case workflow.DecisionReject:
			st.Status = workflow.StatusRejected
			rec.Feedback = feedback
			st.CheckpointMessage = feedback
		default:
			return conclaveerr.Validation("unknown checkpoint decision", map[string]any{"decision": decision})
		}
		st.CheckpointsPassed = append(st.CheckpointsPassed, rec)
		return nil
	})
}

// PauseAtCheckpoint sets status=checkpoint with the given message.
func (s *Store) PauseAtCheckpoint(id, message string) (*workflow.State, error) {
	return s.Mutate(id, func(st *workflow.State) error {
		st.Status = workflow.StatusCheckpoint
		st.CheckpointMessage = message
		return nil
	})
}

// GetVerifierForReviewer resolves reviewer through the workflow's
// custom override map (if any), falling back to the built-in default.
func (s *Store) GetVerifierForReviewer(id, reviewer string) (string, bool, error) {
	st, err := s.Get(id)
	if err != nil {
		return "", false, err
	}
	v, ok := workflow.VerifierFor(st.ReviewerVerifierMap, reviewer)
	return v, ok, nil
}

// GetUnaddressedFeedback returns all FeedbackRecords with Addressed=false
// for the given iteration (iteration<0 means "any iteration").
func (s *Store) GetUnaddressedFeedback(id string, iteration int) ([]workflow.FeedbackRecord, error) {
	st, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	var out []workflow.FeedbackRecord
	for _, fr := range st.FeedbackHistory {
		if fr.Addressed {
			continue
		}
		if iteration >= 0 && fr.Iteration != iteration {
			continue
		}
		out = append(out, fr)
	}
	return out, nil
}

// GetLatestArtifactByType returns the most recent ArtifactRecord of the
// given type, tie-broken by CreatedAt descending, or (nil, false).
func (s *Store) GetLatestArtifactByType(id, artifactType string) (*workflow.ArtifactRecord, bool, error) {
	st, err := s.Get(id)
	if err != nil {
		return nil, false, err
	}
	var best *workflow.ArtifactRecord
	for i := range st.Artifacts {
		a := &st.Artifacts[i]
		if a.Type != artifactType {
			continue
		}
		if best == nil || a.CreatedAt.After(best.CreatedAt) {
			best = a
		}
	}
	if best == nil {
		return nil, false, nil
	}
	cp := *best
	return &cp, true, nil
}

// List returns every workflow_id with a persisted state, sorted.
// Corrupt state files are skipped with a warning rather than failing
// the whole listing (spec.md §7 "Fatal classes").
func (s *Store) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := afero.ReadDir(s.fs, s.stateDir)
	if err != nil {
		return nil, conclaveerr.Storage("listing state directory", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		if _, ok, err := s.readThrough(id); err != nil {
			log.Warn("skipping corrupt state file", "workflow_id", id, "error", err)
			continue
		} else if ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a workflow's persisted state and cache entry. This is
// the only path that ever deletes a WorkflowState (spec.md §3 lifecycle:
// "never deleted implicitly").
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fs.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return conclaveerr.Storage("deleting state file", err)
	}
	s.cache.Remove(id)
	return nil
}

func cloneState(st *workflow.State) *workflow.State {
	cp := *st
	cp.Artifacts = append([]workflow.ArtifactRecord(nil), st.Artifacts...)
	cp.FeedbackHistory = append([]workflow.FeedbackRecord(nil), st.FeedbackHistory...)
	cp.CheckpointsPassed = append([]workflow.CheckpointRecord(nil), st.CheckpointsPassed...)
	cp.AgentRuns = append([]workflow.AgentRunRecord(nil), st.AgentRuns...)
	if st.ReviewerVerifierMap != nil {
		cp.ReviewerVerifierMap = make(map[string]string, len(st.ReviewerVerifierMap))
		for k, v := range st.ReviewerVerifierMap {
			cp.ReviewerVerifierMap[k] = v
		}
	}
	return &cp
}

// writeFileAtomic writes data to a temp file then renames over path,
// so a crash mid-write never corrupts the previous contents. Ported
// from the teacher's internal/state/atomic.go, generalized to afero.
func writeFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, perm); err != nil {
		return err
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	return nil
}
