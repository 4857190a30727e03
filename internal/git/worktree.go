package git

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Stage records the working tree state of path in the index, including deletions.
func (r *Repository) Stage(ctx context.Context, path string) error {
	if _, err := r.resolvePath(path); err != nil {
		return err
	}
	if _, err := r.git(ctx, "add", "-A", "--", path); err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}
	return nil
}

// Unstage restores the index entry of path from HEAD.
// On an unborn branch the path is removed from the index instead.
func (r *Repository) Unstage(ctx context.Context, path string) error {
	if _, err := r.resolvePath(path); err != nil {
		return err
	}
	head, err := r.ResolveHead(ctx)
	if err != nil {
		return err
	}
	if head == "" {
		if _, err := r.git(ctx, "rm", "--cached", "-q", "-r", "--", path); err != nil {
			return fmt.Errorf("unstage %s: %w", path, err)
		}
		return nil
	}
	if _, err := r.git(ctx, "reset", "-q", "HEAD", "--", path); err != nil {
		return fmt.Errorf("unstage %s: %w", path, err)
	}
	return nil
}

// Track marks an untracked path as intent-to-add so its content shows up
// in unstaged diffs.
func (r *Repository) Track(ctx context.Context, path string) error {
	if _, err := r.resolvePath(path); err != nil {
		return err
	}
	if _, err := r.git(ctx, "add", "-N", "--", path); err != nil {
		return fmt.Errorf("track %s: %w", path, err)
	}
	return nil
}

// DeleteUntracked removes an untracked file from disk.
// Callers check that the path is untracked first.
func (r *Repository) DeleteUntracked(ctx context.Context, path string) error {
	full, err := r.resolvePath(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}
