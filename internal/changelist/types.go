package changelist

import (
	"gitpanel/internal/diff"
	"gitpanel/shared/types"
)

const (
	DefaultID   = "default"
	DefaultName = "Default"
)

type Changelist struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
}

// HunkAssignment is the persisted identity of one assigned hunk.
type HunkAssignment struct {
	ID          string          `json:"id"`
	Header      string          `json:"header"`
	OldStart    int             `json:"old_start"`
	OldLines    int             `json:"old_lines"`
	NewStart    int             `json:"new_start"`
	NewLines    int             `json:"new_lines"`
	ContentHash string          `json:"content_hash"`
	Kind        shared.DiffKind `json:"kind"`
}

// AssignmentFromHunk captures the identity of a parsed hunk.
func AssignmentFromHunk(h shared.DiffHunk) HunkAssignment {
	return HunkAssignment{
		ID:          h.ID,
		Header:      h.Header,
		OldStart:    h.OldStart,
		OldLines:    h.OldLines,
		NewStart:    h.NewStart,
		NewLines:    h.NewLines,
		ContentHash: h.ContentHash,
		Kind:        h.Kind,
	}
}

// consistent reports whether the id agrees with the ranges and hash it carries.
func (a HunkAssignment) consistent() bool {
	r, hash, err := diff.ParseID(a.ID)
	if err != nil {
		return false
	}
	return hash == a.ContentHash &&
		r == diff.Range{OldStart: a.OldStart, OldLines: a.OldLines, NewStart: a.NewStart, NewLines: a.NewLines} &&
		a.Kind.Valid()
}

type HunkAssignmentSet struct {
	ChangelistID string           `json:"changelist_id"`
	Hunks        []HunkAssignment `json:"hunks"`
}

// State is the persisted document. A path is in at most one of
// Assignments and HunkAssignments.
type State struct {
	Lists           []Changelist                 `json:"lists"`
	ActiveID        string                       `json:"active_id"`
	Assignments     map[string]string            `json:"assignments"`
	HunkAssignments map[string]HunkAssignmentSet `json:"hunk_assignments"`
}

// Has reports whether a changelist with id exists.
func (s *State) Has(id string) bool {
	for _, l := range s.Lists {
		if l.ID == id {
			return true
		}
	}
	return false
}

// Name returns the display name of id.
func (s *State) Name(id string) (string, bool) {
	for _, l := range s.Lists {
		if l.ID == id {
			return l.Name, true
		}
	}
	return "", false
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	out := &State{
		Lists:           append([]Changelist(nil), s.Lists...),
		ActiveID:        s.ActiveID,
		Assignments:     make(map[string]string, len(s.Assignments)),
		HunkAssignments: make(map[string]HunkAssignmentSet, len(s.HunkAssignments)),
	}
	for k, v := range s.Assignments {
		out.Assignments[k] = v
	}
	for k, v := range s.HunkAssignments {
		v.Hunks = append([]HunkAssignment(nil), v.Hunks...)
		out.HunkAssignments[k] = v
	}
	return out
}

func defaultState(now int64) *State {
	return &State{
		Lists:           []Changelist{{ID: DefaultID, Name: DefaultName, CreatedAt: now}},
		ActiveID:        DefaultID,
		Assignments:     map[string]string{},
		HunkAssignments: map[string]HunkAssignmentSet{},
	}
}

// normalize repairs a loaded document and reports whether it changed.
func (s *State) normalize(now int64) bool {
	changed := false
	if !s.Has(DefaultID) {
		s.Lists = append([]Changelist{{ID: DefaultID, Name: DefaultName, CreatedAt: now}}, s.Lists...)
		changed = true
	}
	if !s.Has(s.ActiveID) {
		s.ActiveID = DefaultID
		changed = true
	}
	if s.Assignments == nil {
		s.Assignments = map[string]string{}
	}
	if s.HunkAssignments == nil {
		s.HunkAssignments = map[string]HunkAssignmentSet{}
	}
	return changed
}
