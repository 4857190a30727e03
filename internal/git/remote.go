package git

import (
	"context"
	"fmt"
	"strings"
)

// Fetch fetches remote (origin when empty) and reports whether any
// remote-tracking ref moved.
func (r *Repository) Fetch(ctx context.Context, remote string) (bool, error) {
	if remote == "" {
		remote = "origin"
	}
	if strings.HasPrefix(remote, "-") {
		return false, fmt.Errorf("invalid remote %q", remote)
	}

	before, err := r.refSnapshot(ctx, "refs/remotes")
	if err != nil {
		return false, err
	}
	if _, err := r.git(ctx, "fetch", "--prune", remote); err != nil {
		return false, fmt.Errorf("fetch: %w", err)
	}
	after, err := r.refSnapshot(ctx, "refs/remotes")
	if err != nil {
		return false, err
	}
	return before != after, nil
}

// Pull integrates the upstream of the current branch, or remote when given.
// It reports whether HEAD moved.
func (r *Repository) Pull(ctx context.Context, remote string) (bool, error) {
	if strings.HasPrefix(remote, "-") {
		return false, fmt.Errorf("invalid remote %q", remote)
	}
	before, err := r.ResolveHead(ctx)
	if err != nil {
		return false, err
	}

	args := []string{"pull", "--no-edit"}
	if remote != "" {
		args = append(args, remote)
	}
	cmd := r.command(args...)
	res, err := cmd.run(ctx)
	if err != nil {
		if res != nil && (strings.Contains(res.Stdout, "CONFLICT") || strings.Contains(res.Stderr, "CONFLICT")) {
			return false, ErrConflict
		}
		return false, fmt.Errorf("pull: %w", err)
	}

	after, err := r.ResolveHead(ctx)
	if err != nil {
		return false, err
	}
	return before != after, nil
}

// Push pushes the current branch to its upstream, or to remote when given.
// It reports whether anything was sent.
func (r *Repository) Push(ctx context.Context, remote string) (bool, error) {
	if strings.HasPrefix(remote, "-") {
		return false, fmt.Errorf("invalid remote %q", remote)
	}
	args := []string{"push", "--porcelain"}
	if remote != "" {
		args = append(args, remote, "HEAD")
	}
	res, err := r.command(args...).run(ctx)
	if err != nil {
		return false, fmt.Errorf("push: %w", err)
	}

	// porcelain lines: <flag> TAB <from>:<to> TAB <summary>; "=" means up to date
	for _, line := range splitLines(res.Stdout) {
		if strings.Contains(line, "\t") && !strings.HasPrefix(line, "=") && !strings.HasPrefix(line, "To ") {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repository) refSnapshot(ctx context.Context, prefix string) (string, error) {
	return r.git(ctx, "for-each-ref", "--format=%(refname) %(objectname)", prefix)
}
