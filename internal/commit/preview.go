// Package commit assembles commits from changelists without touching the
// user's index: a private index is seeded from HEAD, the selected files and
// hunks are written into it, and HEAD is advanced with a compare-and-swap.
package commit

import (
	"context"
	"sort"

	"gitpanel/internal/changelist"
	"gitpanel/internal/diff"
	"gitpanel/internal/errors"
	"gitpanel/shared/types"
)

const (
	msgNoFiles         = "Changelist has no files."
	msgConflicted      = "Changelist contains conflicted files."
	msgUnstagedOnStage = "Unstaged hunks cannot be committed while staged changes exist in the same file."
	msgReselect        = "Some hunks no longer match the file. Reselect required."
	msgWorkingTree     = "Some files have both staged and unstaged changes; the commit will use the working tree version."
	msgOrphaned        = "Some assigned hunks belong to files without changes and were skipped."
	msgNeedsReselect   = "Some hunks need reselect before committing."
)

// HunkSource returns the live hunks of one file.
type HunkSource interface {
	Hunks(ctx context.Context, path string, kind shared.DiffKind) ([]shared.DiffHunk, error)
}

// InvalidHunk is an assigned hunk that can not be committed as recorded.
type InvalidHunk struct {
	Path string                    `json:"path"`
	Hunk changelist.HunkAssignment `json:"hunk"`
}

// Preview describes what committing a changelist would record.
type Preview struct {
	ChangelistID   string               `json:"changelist_id"`
	ChangelistName string               `json:"changelist_name"`
	Files          []shared.StatusEntry `json:"files"`
	Stats          shared.RepoCounts    `json:"stats"`
	Warnings       []string             `json:"warnings"`
	HunkFiles      []string             `json:"hunk_files"`
	InvalidHunks   []InvalidHunk        `json:"invalid_hunks"`

	hunks map[string][]changelist.HunkAssignment
}

// Committable reports whether Execute would accept the preview.
func (p *Preview) Committable() bool {
	return len(p.InvalidHunks) == 0
}

// BuildPreview checks changelistID against a reconciled status and the
// changelist document. Files with conflicts or no members are refused;
// hunks that no longer match the working tree are reported, not dropped.
func BuildPreview(ctx context.Context, changelistID string, status *shared.RepoStatus, state *changelist.State, src HunkSource) (*Preview, error) {
	name, ok := state.Name(changelistID)
	if !ok {
		return nil, errors.NotFound("unknown changelist id")
	}

	p := &Preview{
		ChangelistID:   changelistID,
		ChangelistName: name,
		Files:          []shared.StatusEntry{},
		Warnings:       []string{},
		HunkFiles:      []string{},
		InvalidHunks:   []InvalidHunk{},
		hunks:          make(map[string][]changelist.HunkAssignment),
	}

	live := make(map[string]shared.StatusEntry, len(status.Files))
	for _, f := range status.Files {
		live[f.Path] = f
		if f.ChangelistID == changelistID {
			p.Files = append(p.Files, f)
			p.Stats.Add(f.Status)
		}
	}

	orphaned := false
	for path, set := range state.HunkAssignments {
		if set.ChangelistID != changelistID {
			continue
		}
		if _, ok := live[path]; !ok {
			orphaned = true
			continue
		}
		p.HunkFiles = append(p.HunkFiles, path)
		p.hunks[path] = set.Hunks
	}
	sort.Strings(p.HunkFiles)

	if len(p.Files) == 0 && len(p.HunkFiles) == 0 {
		return nil, errors.Precondition(msgNoFiles, map[string]string{"changelist_id": changelistID})
	}
	for _, f := range p.Files {
		if f.Status == shared.StatusConflicted {
			return nil, errors.Precondition(msgConflicted, map[string]string{"path": f.Path})
		}
	}

	warnings := newWarnings()
	if orphaned {
		warnings.add(msgOrphaned)
	}

	for _, path := range p.HunkFiles {
		entry := live[path]
		assigned := p.hunks[path]

		if hasUnstaged(assigned) && (entry.Status == shared.StatusStaged || entry.Status == shared.StatusBoth) {
			for _, h := range assigned {
				p.InvalidHunks = append(p.InvalidHunks, InvalidHunk{Path: path, Hunk: h})
			}
			warnings.add(msgUnstagedOnStage)
			continue
		}

		current := make(map[shared.DiffKind][]shared.DiffHunk)
		for _, h := range assigned {
			hunks, ok := current[h.Kind]
			if !ok {
				var err error
				hunks, err = src.Hunks(ctx, path, h.Kind)
				if err != nil {
					return nil, errors.From(err)
				}
				current[h.Kind] = hunks
			}
			if _, found := diff.Find(hunks, h.ID, h.ContentHash); !found {
				p.InvalidHunks = append(p.InvalidHunks, InvalidHunk{Path: path, Hunk: h})
				warnings.add(msgReselect)
			}
		}
	}

	for _, f := range p.Files {
		if f.Status == shared.StatusBoth && !f.ChangelistPartial {
			warnings.add(msgWorkingTree)
			break
		}
	}

	p.Warnings = warnings.list
	return p, nil
}

// wholeFiles returns the members committed with their working tree content.
func (p *Preview) wholeFiles() []shared.StatusEntry {
	var out []shared.StatusEntry
	for _, f := range p.Files {
		if !f.ChangelistPartial {
			out = append(out, f)
		}
	}
	return out
}

func hasUnstaged(hunks []changelist.HunkAssignment) bool {
	for _, h := range hunks {
		if h.Kind == shared.DiffUnstaged {
			return true
		}
	}
	return false
}

type warnings struct {
	seen map[string]bool
	list []string
}

func newWarnings() *warnings {
	return &warnings{seen: make(map[string]bool), list: []string{}}
}

func (w *warnings) add(msg string) {
	if !w.seen[msg] {
		w.seen[msg] = true
		w.list = append(w.list, msg)
	}
}
