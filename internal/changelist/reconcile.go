package changelist

import (
	"sort"

	"gitpanel/shared/types"
)

// Reconciliation summarizes one pass of Reconcile.
type Reconciliation struct {
	// Migrated is set when a rename moved an assignment to a new path.
	Migrated bool
	// Orphaned lists assigned paths that no status entry refers to.
	// Their assignments are kept.
	Orphaned []string
}

// Reconcile annotates every status entry with its changelist and follows
// renames: an entry with no direct assignment inherits the assignment of its
// old path. Resolution order is whole-file, then hunk (partial), then default.
func Reconcile(state *State, status *shared.RepoStatus) Reconciliation {
	var rec Reconciliation
	live := make(map[string]bool, len(status.Files))

	for i := range status.Files {
		file := &status.Files[i]
		live[file.Path] = true

		assigned, ok := state.Assignments[file.Path]
		_, hunked := state.HunkAssignments[file.Path]
		if !ok && !hunked && file.OldPath != "" {
			if oldID, found := state.Assignments[file.OldPath]; found {
				delete(state.Assignments, file.OldPath)
				state.Assignments[file.Path] = oldID
				assigned, ok = oldID, true
				rec.Migrated = true
			} else if oldHunks, found := state.HunkAssignments[file.OldPath]; found {
				delete(state.HunkAssignments, file.OldPath)
				state.HunkAssignments[file.Path] = oldHunks
				rec.Migrated = true
			}
		}

		if ok {
			if name, known := state.Name(assigned); known {
				file.ChangelistID = assigned
				file.ChangelistName = name
				file.ChangelistPartial = false
				continue
			}
		}
		if set, found := state.HunkAssignments[file.Path]; found {
			if name, known := state.Name(set.ChangelistID); known {
				file.ChangelistID = set.ChangelistID
				file.ChangelistName = name
				file.ChangelistPartial = true
				continue
			}
		}

		file.ChangelistID = DefaultID
		file.ChangelistName = defaultName(state)
		file.ChangelistPartial = false
	}

	for path := range state.Assignments {
		if !live[path] {
			rec.Orphaned = append(rec.Orphaned, path)
		}
	}
	for path := range state.HunkAssignments {
		if !live[path] {
			rec.Orphaned = append(rec.Orphaned, path)
		}
	}
	sort.Strings(rec.Orphaned)
	return rec
}

func defaultName(state *State) string {
	if name, ok := state.Name(DefaultID); ok {
		return name
	}
	return DefaultName
}
