// Package shared holds the data model exchanged between the engine and its callers.
package shared

// RepoHandle identifies one opened working tree.
type RepoHandle struct {
	RepoID       string `json:"repo_id"`
	Path         string `json:"path"`
	Name         string `json:"name"`
	RepoRoot     string `json:"repo_root"`
	WorktreePath string `json:"worktree_path"`
	GitDir       string `json:"git_dir"`
	IsValid      bool   `json:"is_valid"`
}

// StatusKind classifies one changed path.
type StatusKind string

const (
	StatusStaged     StatusKind = "staged"
	StatusUnstaged   StatusKind = "unstaged"
	StatusBoth       StatusKind = "both"
	StatusUntracked  StatusKind = "untracked"
	StatusConflicted StatusKind = "conflicted"
)

// StatusEntry is one changed path as reported by a status query.
// The changelist fields are filled in by reconciliation.
type StatusEntry struct {
	Path              string     `json:"path"`
	OldPath           string     `json:"old_path,omitempty"`
	Status            StatusKind `json:"status"`
	ChangelistID      string     `json:"changelist_id,omitempty"`
	ChangelistName    string     `json:"changelist_name,omitempty"`
	ChangelistPartial bool       `json:"changelist_partial,omitempty"`
}

// RepoHead describes what HEAD points at.
type RepoHead struct {
	BranchName string `json:"branch_name"`
	OIDShort   string `json:"oid_short"`
	OID        string `json:"oid,omitempty"`
	Detached   bool   `json:"detached,omitempty"`
	Unborn     bool   `json:"unborn,omitempty"`
}

// RepoCounts aggregates status entries by kind.
type RepoCounts struct {
	Staged     int `json:"staged"`
	Unstaged   int `json:"unstaged"`
	Untracked  int `json:"untracked"`
	Conflicted int `json:"conflicted"`
}

// Add counts one entry. A file with both staged and unstaged changes counts in both buckets.
func (c *RepoCounts) Add(kind StatusKind) {
	switch kind {
	case StatusStaged:
		c.Staged++
	case StatusUnstaged:
		c.Unstaged++
	case StatusBoth:
		c.Staged++
		c.Unstaged++
	case StatusUntracked:
		c.Untracked++
	case StatusConflicted:
		c.Conflicted++
	}
}

// RepoStatus is a full status snapshot of one repository.
type RepoStatus struct {
	RepoID string        `json:"repo_id"`
	Head   RepoHead      `json:"head"`
	Counts RepoCounts    `json:"counts"`
	Files  []StatusEntry `json:"files"`
}

// Clone returns a deep copy so cached snapshots are never mutated by callers.
func (s *RepoStatus) Clone() *RepoStatus {
	if s == nil {
		return nil
	}
	out := *s
	out.Files = make([]StatusEntry, len(s.Files))
	copy(out.Files, s.Files)
	return &out
}

// Recount recomputes Counts from Files.
func (s *RepoStatus) Recount() {
	s.Counts = RepoCounts{}
	for _, f := range s.Files {
		s.Counts.Add(f.Status)
	}
}

// HasChanges reports whether anything besides untracked files is pending.
func (s *RepoStatus) HasChanges() bool {
	return s.Counts.Staged > 0 || s.Counts.Unstaged > 0 || s.Counts.Conflicted > 0
}

// DiffKind is the baseline a diff is computed against.
type DiffKind string

const (
	// DiffStaged compares the index with HEAD.
	DiffStaged DiffKind = "staged"
	// DiffUnstaged compares the working tree with the index.
	DiffUnstaged DiffKind = "unstaged"
)

// Valid reports whether k is a known baseline.
func (k DiffKind) Valid() bool {
	return k == DiffStaged || k == DiffUnstaged
}

// DiffHunk is one contiguous change region of one file's diff.
type DiffHunk struct {
	ID          string   `json:"id"`
	Path        string   `json:"path"`
	Kind        DiffKind `json:"kind"`
	Header      string   `json:"header"`
	OldStart    int      `json:"old_start"`
	OldLines    int      `json:"old_lines"`
	NewStart    int      `json:"new_start"`
	NewLines    int      `json:"new_lines"`
	Body        string   `json:"lines"`
	ContentHash string   `json:"content_hash"`
	FileHeader  string   `json:"file_header,omitempty"`
}

// DiffPayload bundles the raw diff text with its parsed hunks.
type DiffPayload struct {
	Text  string     `json:"text"`
	Hunks []DiffHunk `json:"hunks"`
}

// AheadBehind counts commits relative to an upstream.
type AheadBehind struct {
	Ahead  int `json:"ahead"`
	Behind int `json:"behind"`
}

// BranchList lists local and remote branches.
type BranchList struct {
	Current     string                 `json:"current"`
	Locals      []string               `json:"locals"`
	Remotes     []string               `json:"remotes"`
	AheadBehind map[string]AheadBehind `json:"ahead_behind,omitempty"`
}

// CheckoutTargetKind selects a local or a remote branch.
type CheckoutTargetKind string

const (
	CheckoutLocal  CheckoutTargetKind = "local"
	CheckoutRemote CheckoutTargetKind = "remote"
)

// CheckoutTarget names the branch to switch to.
type CheckoutTarget struct {
	Kind CheckoutTargetKind `json:"type"`
	Name string             `json:"name"`
}

// FetchResult reports the outcome of fetch, pull or push.
type FetchResult struct {
	Remote  string `json:"remote"`
	Updated bool   `json:"updated"`
}

// Worktree is one entry of `git worktree list`.
type Worktree struct {
	Path     string `json:"path"`
	Head     string `json:"head"`
	Branch   string `json:"branch,omitempty"`
	Bare     bool   `json:"bare,omitempty"`
	Detached bool   `json:"detached,omitempty"`
	Locked   bool   `json:"locked,omitempty"`
	Prunable bool   `json:"prunable,omitempty"`
}

// RepoListItem is one recently opened repository.
type RepoListItem struct {
	RepoID     string `json:"repo_id"`
	Path       string `json:"path"`
	Name       string `json:"name"`
	LastOpened int64  `json:"last_opened"`
}
