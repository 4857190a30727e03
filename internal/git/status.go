package git

import (
	"context"
	"fmt"
	"strings"

	"gitpanel/shared/types"
)

// Status lists changed paths and the HEAD description.
// Changelist fields of the entries are left empty.
func (r *Repository) Status(ctx context.Context) (*shared.RepoStatus, error) {
	cmd := r.command("status", "--porcelain=v2", "-z", "--branch", "--untracked-files=all")
	// status must not take the index lock while the user is staging elsewhere
	cmd.env = []string{"GIT_OPTIONAL_LOCKS=0"}
	res, err := cmd.run(ctx)
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}

	status := parseStatus(res.Stdout)
	return status, nil
}

// parseStatus decodes `git status --porcelain=v2 -z --branch` output.
func parseStatus(out string) *shared.RepoStatus {
	status := &shared.RepoStatus{Files: []shared.StatusEntry{}}
	var (
		oid  string
		head string
	)

	tokens := strings.Split(out, "\x00")
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok == "" {
			continue
		}

		switch tok[0] {
		case '#':
			switch {
			case strings.HasPrefix(tok, "# branch.oid "):
				oid = strings.TrimPrefix(tok, "# branch.oid ")
			case strings.HasPrefix(tok, "# branch.head "):
				head = strings.TrimPrefix(tok, "# branch.head ")
			}
		case '1':
			// 1 <XY> <sub> <mH> <mI> <mW> <hH> <hI> <path>
			fields := strings.SplitN(tok, " ", 9)
			if len(fields) < 9 {
				continue
			}
			status.Files = append(status.Files, shared.StatusEntry{
				Path:   fields[8],
				Status: kindFromXY(fields[1]),
			})
		case '2':
			// 2 <XY> <sub> <mH> <mI> <mW> <hH> <hI> <X><score> <path>, then NUL <origPath>
			fields := strings.SplitN(tok, " ", 10)
			if len(fields) < 10 {
				continue
			}
			entry := shared.StatusEntry{
				Path:   fields[9],
				Status: kindFromXY(fields[1]),
			}
			if i+1 < len(tokens) {
				entry.OldPath = tokens[i+1]
				i++
			}
			status.Files = append(status.Files, entry)
		case 'u':
			// u <XY> <sub> <m1> <m2> <m3> <mW> <h1> <h2> <h3> <path>
			fields := strings.SplitN(tok, " ", 11)
			if len(fields) < 11 {
				continue
			}
			status.Files = append(status.Files, shared.StatusEntry{
				Path:   fields[10],
				Status: shared.StatusConflicted,
			})
		case '?':
			if len(tok) > 2 {
				status.Files = append(status.Files, shared.StatusEntry{
					Path:   tok[2:],
					Status: shared.StatusUntracked,
				})
			}
		}
	}

	status.Head = headFromBranchHeaders(oid, head)
	status.Recount()
	return status
}

func kindFromXY(xy string) shared.StatusKind {
	if len(xy) < 2 {
		return shared.StatusUnstaged
	}
	staged := xy[0] != '.'
	unstaged := xy[1] != '.'
	switch {
	case staged && unstaged:
		return shared.StatusBoth
	case staged:
		return shared.StatusStaged
	default:
		return shared.StatusUnstaged
	}
}

func headFromBranchHeaders(oid, head string) shared.RepoHead {
	h := shared.RepoHead{BranchName: head}
	if oid == "" || oid == "(initial)" {
		h.Unborn = true
	} else {
		h.OID = oid
		h.OIDShort = shortOID(oid)
	}
	if head == "(detached)" {
		h.Detached = true
		h.BranchName = "HEAD"
	}
	return h
}

func shortOID(oid string) string {
	if len(oid) > 7 {
		return oid[:7]
	}
	return oid
}

// Head describes what HEAD points at without computing a full status.
func (r *Repository) Head(ctx context.Context) (shared.RepoHead, error) {
	oid, err := r.ResolveHead(ctx)
	if err != nil {
		return shared.RepoHead{}, err
	}
	branch, ok, err := r.gitOptional(ctx, "symbolic-ref", "-q", "--short", "HEAD")
	if err != nil {
		return shared.RepoHead{}, err
	}

	head := shared.RepoHead{
		BranchName: strings.TrimSpace(branch),
		OID:        oid,
		OIDShort:   shortOID(oid),
		Unborn:     oid == "",
	}
	if !ok {
		head.BranchName = "HEAD"
		head.Detached = true
	}
	return head, nil
}

// IsDirty reports whether tracked files have staged, unstaged or conflicted changes.
// Untracked files do not count.
func (r *Repository) IsDirty(ctx context.Context) (bool, error) {
	status, err := r.Status(ctx)
	if err != nil {
		return false, err
	}
	return status.HasChanges(), nil
}
