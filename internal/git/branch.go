package git

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gitpanel/shared/types"
)

// ListBranches returns local and remote-tracking branches with upstream
// ahead/behind counts for locals that track something.
func (r *Repository) ListBranches(ctx context.Context) (*shared.BranchList, error) {
	format := "%(refname)%00%(HEAD)%00%(upstream:short)%00%(upstream:track)"
	out, err := r.git(ctx, "for-each-ref", "--format="+format, "refs/heads", "refs/remotes")
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}

	list := &shared.BranchList{
		Locals:      []string{},
		Remotes:     []string{},
		AheadBehind: map[string]shared.AheadBehind{},
	}
	for _, line := range splitLines(out) {
		parts := strings.Split(line, "\x00")
		if len(parts) < 4 {
			continue
		}
		ref := parts[0]
		switch {
		case strings.HasPrefix(ref, "refs/heads/"):
			name := strings.TrimPrefix(ref, "refs/heads/")
			list.Locals = append(list.Locals, name)
			if parts[1] == "*" {
				list.Current = name
			}
			if parts[2] != "" {
				list.AheadBehind[name] = parseTrack(parts[3])
			}
		case strings.HasPrefix(ref, "refs/remotes/"):
			name := strings.TrimPrefix(ref, "refs/remotes/")
			if strings.HasSuffix(name, "/HEAD") {
				continue
			}
			list.Remotes = append(list.Remotes, name)
		}
	}

	if list.Current == "" {
		if head, err := r.Head(ctx); err == nil {
			list.Current = head.BranchName
		}
	}
	if len(list.AheadBehind) == 0 {
		list.AheadBehind = nil
	}
	sort.Strings(list.Locals)
	sort.Strings(list.Remotes)
	return list, nil
}

// parseTrack decodes "[ahead N, behind M]" and its partial forms.
func parseTrack(track string) shared.AheadBehind {
	var ab shared.AheadBehind
	track = strings.Trim(track, "[]")
	for _, part := range strings.Split(track, ", ") {
		switch {
		case strings.HasPrefix(part, "ahead "):
			fmt.Sscanf(part, "ahead %d", &ab.Ahead)
		case strings.HasPrefix(part, "behind "):
			fmt.Sscanf(part, "behind %d", &ab.Behind)
		}
	}
	return ab
}

// Checkout switches to a local branch, or to a local branch tracking the
// given remote branch (created when missing). A dirty tree is refused.
func (r *Repository) Checkout(ctx context.Context, target shared.CheckoutTarget) (shared.RepoHead, error) {
	name := strings.TrimSpace(target.Name)
	if name == "" || strings.HasPrefix(name, "-") {
		return shared.RepoHead{}, fmt.Errorf("%w: %q", ErrInvalidBranch, target.Name)
	}

	dirty, err := r.IsDirty(ctx)
	if err != nil {
		return shared.RepoHead{}, err
	}
	if dirty {
		return shared.RepoHead{}, ErrDirtyWorkingTree
	}

	switch target.Kind {
	case shared.CheckoutRemote:
		_, local, ok := strings.Cut(name, "/")
		if !ok || local == "" {
			return shared.RepoHead{}, fmt.Errorf("%w: remote branch %q has no remote prefix", ErrInvalidBranch, name)
		}
		exists, err := r.branchExists(ctx, local)
		if err != nil {
			return shared.RepoHead{}, err
		}
		if exists {
			_, err = r.git(ctx, "switch", local)
		} else {
			_, err = r.git(ctx, "switch", "--track", "-c", local, name)
		}
		if err != nil {
			return shared.RepoHead{}, fmt.Errorf("checkout %s: %w", name, err)
		}
	default:
		if _, err := r.git(ctx, "switch", name); err != nil {
			return shared.RepoHead{}, fmt.Errorf("checkout %s: %w", name, err)
		}
	}

	return r.Head(ctx)
}

// CreateBranch creates name at from, or at HEAD when from is empty.
func (r *Repository) CreateBranch(ctx context.Context, name, from string) error {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, "-") {
		return fmt.Errorf("%w: %q", ErrInvalidBranch, name)
	}
	if _, ok, err := r.gitOptional(ctx, "check-ref-format", "--branch", name); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidBranch, name)
	}

	exists, err := r.branchExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrBranchExists, name)
	}

	args := []string{"branch", name}
	if from = strings.TrimSpace(from); from != "" {
		if strings.HasPrefix(from, "-") {
			return fmt.Errorf("%w: start point %q", ErrInvalidBranch, from)
		}
		args = append(args, from)
	}
	if _, err := r.git(ctx, args...); err != nil {
		return fmt.Errorf("create branch %s: %w", name, err)
	}
	return nil
}

func (r *Repository) branchExists(ctx context.Context, name string) (bool, error) {
	_, ok, err := r.gitOptional(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return ok, err
}
