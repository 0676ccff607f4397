package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// Store persists Run records as one whole-file-replaced JSON document per
// run, under a per-user runs directory. File names are sortable by creation
// time (a time prefix plus a random suffix), so ActiveRun and List can scan
// in reverse order without loading every file — grounded on the teacher's
// handoff.Store whole-file JSON persistence, generalized to one file per run
// with atomic write-temp-then-rename (jorge-barreto-orc's internal/state
// atomic writer) instead of an in-place overwrite.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore creates a Store rooted at dir, creating the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating runs directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// newRunID builds a sortable run id: a compact UTC time prefix (to the
// nanosecond, no colons) plus a short uuid suffix for uniqueness.
func newRunID(now time.Time) string {
	prefix := now.UTC().Format("20060102T150405.000000000")
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("%s-%s", prefix, suffix)
}

func (s *Store) path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

// New creates a fresh Run in state idle and persists it.
func (s *Store) New(now time.Time) (*Run, error) {
	run := &Run{
		RunID: newRunID(now),
		State: StateIdle,
		Context: Context{
			Outputs: make(map[string]OutputEntry),
		},
	}
	if err := s.save(run, now); err != nil {
		return nil, err
	}
	return run, nil
}

// Load hydrates a Run from the store by id.
func (s *Store) Load(runID string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &RunNotFoundError{RunID: runID}
		}
		return nil, fmt.Errorf("reading run file: %w", err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parsing run file: %w", err)
	}
	if run.Context.Outputs == nil {
		run.Context.Outputs = make(map[string]OutputEntry)
	}
	return &run, nil
}

// save performs the whole-file atomic write: write to a temp file in the
// same directory, fsync, then rename over the target. The rename is atomic
// on POSIX filesystems, so a crash mid-write never corrupts the prior
// snapshot.
func (s *Store) save(run *Run, now time.Time) error {
	run.SavedAt = now
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}

	target := s.path(run.RunID)
	tmp := target + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("opening temp run file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("writing temp run file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("syncing temp run file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("closing temp run file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming run file into place: %w", err)
	}
	return nil
}

// Transition validates and applies a state change, appending a stage entry,
// merging data into the context, and persisting before returning. It never
// mutates the run or its file on an invalid transition.
func (s *Store) Transition(run *Run, to State, data map[string]interface{}, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !CanTransition(run.State, to) {
		return &InvalidTransitionError{From: run.State, To: to}
	}

	from := run.State
	run.State = to
	if run.Context.StartTime.IsZero() && to != StateIdle {
		run.Context.StartTime = now
	}
	run.Context.Stages = append(run.Context.Stages, StageEntry{
		FromState: from,
		ToState:   to,
		Timestamp: now,
		Data:      data,
	})
	mergeContextData(&run.Context, data)
	if IsTerminal(to) {
		end := now
		run.Context.EndTime = &end
	}

	if err := s.save(run, now); err != nil {
		// Roll back the in-memory mutation so the caller's run object
		// reflects reality even though persistence failed.
		run.State = from
		run.Context.Stages = run.Context.Stages[:len(run.Context.Stages)-1]
		return err
	}
	return nil
}

// RecordError appends an error entry and persists it.
func (s *Store) RecordError(run *Run, stage, message, stack string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.Context.Errors = append(run.Context.Errors, ErrorEntry{
		Stage:     stage,
		Message:   message,
		Stack:     stack,
		Timestamp: now,
	})
	return s.save(run, now)
}

// RecordOutput overwrites the output entry for a stage and persists it.
func (s *Store) RecordOutput(run *Run, stage string, value interface{}, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.Context.Outputs == nil {
		run.Context.Outputs = make(map[string]OutputEntry)
	}
	run.Context.Outputs[stage] = OutputEntry{Output: value, Timestamp: now}
	return s.save(run, now)
}

// AddArtifact appends an artifact entry and persists it.
func (s *Store) AddArtifact(run *Run, artifactType, path string, metadata map[string]interface{}, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.Context.Artifacts = append(run.Context.Artifacts, Artifact{
		Type:      artifactType,
		Path:      path,
		Metadata:  metadata,
		Timestamp: now,
	})
	return s.save(run, now)
}

// listRunIDs returns every run id in the store, sorted descending
// (newest-first, since ids are sortable by creation time).
func (s *Store) listRunIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading runs directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	slices.SortFunc(ids, func(a, b string) int {
		return strings.Compare(b, a) // descending: newest first
	})
	return ids, nil
}

// ActiveRun scans the store in reverse chronological id order and returns
// the first run whose state is non-terminal. Returns nil, nil if none.
func (s *Store) ActiveRun() (*Run, error) {
	ids, err := s.listRunIDs()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		run, err := s.Load(id)
		if err != nil {
			continue
		}
		if !IsTerminal(run.State) {
			return run, nil
		}
	}
	return nil, nil
}

// List returns up to limit of the most recent runs, newest first. A limit
// of 0 or less returns every run.
func (s *Store) List(limit int) ([]*Run, error) {
	ids, err := s.listRunIDs()
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	runs := make([]*Run, 0, len(ids))
	for _, id := range ids {
		run, err := s.Load(id)
		if err != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// sortRunsByRecency is kept for callers that already have []*Run in hand
// (e.g. after a batch load) and want the same ordering List uses.
func sortRunsByRecency(runs []*Run) {
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].RunID > runs[j].RunID
	})
}
