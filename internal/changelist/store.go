// Package changelist persists named changelists and the file and hunk
// assignments that sort uncommitted changes into them.
package changelist

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitpanel/internal/errors"
	"gitpanel/internal/logging"
	"gitpanel/shared/types"
	"gitpanel/shared/utils"
)

const (
	stateDir  = "gitpanel"
	stateFile = "changelists.json"
)

// Store reads and writes the changelist document of one worktree.
// The document is reloaded on every call so external edits and corruption
// are picked up; every mutation is saved before returning.
type Store struct {
	path   string
	logger *logging.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewStore keeps its document under gitDir/gitpanel/changelists.json.
func NewStore(gitDir string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{
		path:   filepath.Join(gitDir, stateDir, stateFile),
		logger: logger,
		now:    time.Now,
	}
}

// Path returns the location of the persisted document.
func (s *Store) Path() string {
	return s.path
}

// State returns a copy of the current document.
func (s *Store) State() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) Create(name string) (*Changelist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.ValidationError("changelist name is required", nil)
	}

	var created Changelist
	err := s.mutate(func(state *State) error {
		now := s.now().UnixMilli()
		id := fmt.Sprintf("cl-%d", now)
		if state.Has(id) {
			id = fmt.Sprintf("cl-%d-%d", now, len(state.Lists))
		}
		for n := len(state.Lists) + 1; state.Has(id); n++ {
			id = fmt.Sprintf("cl-%d-%d", now, n)
		}
		created = Changelist{ID: id, Name: name, CreatedAt: now}
		state.Lists = append(state.Lists, created)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) Rename(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.ValidationError("changelist name is required", nil)
	}
	return s.mutate(func(state *State) error {
		for i := range state.Lists {
			if state.Lists[i].ID == id {
				state.Lists[i].Name = name
				return nil
			}
		}
		return unknownChangelist(id)
	})
}

// Delete removes a changelist and every assignment pointing at it.
func (s *Store) Delete(id string) error {
	if id == DefaultID {
		return errors.Precondition("cannot delete default changelist", nil)
	}
	return s.mutate(func(state *State) error {
		if !state.Has(id) {
			return unknownChangelist(id)
		}
		lists := state.Lists[:0]
		for _, l := range state.Lists {
			if l.ID != id {
				lists = append(lists, l)
			}
		}
		state.Lists = lists
		for path, owner := range state.Assignments {
			if owner == id {
				delete(state.Assignments, path)
			}
		}
		for path, set := range state.HunkAssignments {
			if set.ChangelistID == id {
				delete(state.HunkAssignments, path)
			}
		}
		if state.ActiveID == id {
			state.ActiveID = DefaultID
		}
		return nil
	})
}

func (s *Store) SetActive(id string) error {
	return s.mutate(func(state *State) error {
		if !state.Has(id) {
			return unknownChangelist(id)
		}
		state.ActiveID = id
		return nil
	})
}

// AssignFiles assigns whole files to id, dropping any hunk assignment for them.
func (s *Store) AssignFiles(id string, paths []string) error {
	return s.mutate(func(state *State) error {
		if !state.Has(id) {
			return unknownChangelist(id)
		}
		for _, p := range paths {
			p = utils.NormalizeRepoPath(p)
			state.Assignments[p] = id
			delete(state.HunkAssignments, p)
		}
		return nil
	})
}

func (s *Store) UnassignFiles(paths []string) error {
	return s.mutate(func(state *State) error {
		for _, p := range paths {
			delete(state.Assignments, utils.NormalizeRepoPath(p))
		}
		return nil
	})
}

// AssignHunks replaces the hunk assignment of path and drops its whole-file
// assignment. Every hunk id must agree with the ranges and hash it carries.
func (s *Store) AssignHunks(id, path string, hunks []HunkAssignment) error {
	if len(hunks) == 0 {
		return errors.ValidationError("no hunks provided", nil)
	}
	for _, h := range hunks {
		if !h.consistent() {
			return errors.ValidationError("hunk id does not match its content", map[string]string{"hunk_id": h.ID})
		}
	}
	path = utils.NormalizeRepoPath(path)
	if path == "" {
		return errors.ValidationError("path is required", nil)
	}

	return s.mutate(func(state *State) error {
		if !state.Has(id) {
			return unknownChangelist(id)
		}
		delete(state.Assignments, path)
		state.HunkAssignments[path] = HunkAssignmentSet{
			ChangelistID: id,
			Hunks:        dedupe(hunks),
		}
		return nil
	})
}

// UnassignHunks drops the given hunk ids from path, removing the entry once empty.
func (s *Store) UnassignHunks(path string, hunkIDs []string) error {
	path = utils.NormalizeRepoPath(path)
	drop := make(map[string]bool, len(hunkIDs))
	for _, id := range hunkIDs {
		drop[id] = true
	}
	return s.mutate(func(state *State) error {
		set, ok := state.HunkAssignments[path]
		if !ok {
			return nil
		}
		kept := set.Hunks[:0]
		for _, h := range set.Hunks {
			if !drop[h.ID] {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(state.HunkAssignments, path)
			return nil
		}
		set.Hunks = kept
		state.HunkAssignments[path] = set
		return nil
	})
}

// ClearAssignments forgets both kinds of assignment for paths.
func (s *Store) ClearAssignments(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return s.mutate(func(state *State) error {
		for _, p := range paths {
			p = utils.NormalizeRepoPath(p)
			delete(state.Assignments, p)
			delete(state.HunkAssignments, p)
		}
		return nil
	})
}

// ApplyToStatus reconciles status against the stored document, saving it
// when a rename migrated an assignment. It returns the state it used.
func (s *Store) ApplyToStatus(status *shared.RepoStatus) (*State, Reconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return nil, Reconciliation{}, err
	}
	rec := Reconcile(state, status)
	if rec.Migrated {
		if err := s.save(state); err != nil {
			return nil, rec, err
		}
	}
	if len(rec.Orphaned) > 0 {
		s.logger.Warn("changelist assignments without status entries",
			zap.String("path", s.path),
			zap.Strings("orphaned", rec.Orphaned))
	}
	return state.Clone(), rec, nil
}

func (s *Store) mutate(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	return s.save(state)
}

// load reads the document, reinitializing it when missing or unreadable.
// Caller holds mu.
func (s *Store) load() (*State, error) {
	now := s.now().UnixMilli()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.Internal(fmt.Errorf("read changelists: %w", err))
		}
		state := defaultState(now)
		return state, s.save(state)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("changelist document unreadable, resetting",
			zap.String("path", s.path),
			zap.Error(err))
		fresh := defaultState(now)
		return fresh, s.save(fresh)
	}
	if state.normalize(now) {
		if err := s.save(&state); err != nil {
			return nil, err
		}
	}
	return &state, nil
}

// save writes the document to a temp file in the same directory and renames
// it over the old one. Caller holds mu.
func (s *Store) save(state *State) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Internal(fmt.Errorf("create %s: %w", dir, err))
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Internal(err)
	}

	tmp, err := os.CreateTemp(dir, stateFile+".*.tmp")
	if err != nil {
		return errors.Internal(fmt.Errorf("save changelists: %w", err))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Internal(fmt.Errorf("save changelists: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return errors.Internal(fmt.Errorf("save changelists: %w", err))
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Internal(fmt.Errorf("save changelists: %w", err))
	}
	return nil
}

func unknownChangelist(id string) error {
	e := errors.NotFound("unknown changelist id")
	e.Details = map[string]string{"changelist_id": id}
	return e
}

func dedupe(hunks []HunkAssignment) []HunkAssignment {
	seen := make(map[string]bool, len(hunks))
	out := make([]HunkAssignment, 0, len(hunks))
	for _, h := range hunks {
		if seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		out = append(out, h)
	}
	return out
}
