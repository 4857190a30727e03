package git

import (
	"context"
	"fmt"
	"strings"
)

// ResolveHead returns the commit HEAD points at, or "" on an unborn branch.
func (r *Repository) ResolveHead(ctx context.Context) (string, error) {
	out, ok, err := r.gitOptional(ctx, "rev-parse", "-q", "--verify", "HEAD^{commit}")
	if err != nil || !ok {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// HeadRef returns the full ref HEAD is attached to ("refs/heads/main"),
// or "HEAD" when detached.
func (r *Repository) HeadRef(ctx context.Context) (string, error) {
	out, ok, err := r.gitOptional(ctx, "symbolic-ref", "-q", "HEAD")
	if err != nil {
		return "", err
	}
	if !ok {
		return "HEAD", nil
	}
	return strings.TrimSpace(out), nil
}

// HeadParents returns the parents of the HEAD commit.
func (r *Repository) HeadParents(ctx context.Context) ([]string, error) {
	out, err := r.git(ctx, "rev-list", "--parents", "-n", "1", "HEAD")
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return nil, fmt.Errorf("rev-list returned nothing for HEAD")
	}
	return fields[1:], nil
}

// CommitMessage returns the raw message of rev.
func (r *Repository) CommitMessage(ctx context.Context, rev string) (string, error) {
	return r.git(ctx, "show", "-s", "--format=%B", rev)
}

// ReadTree seeds index from treeish, or empties it when treeish is "".
func (r *Repository) ReadTree(ctx context.Context, index, treeish string) error {
	args := []string{"read-tree", "--empty"}
	if treeish != "" {
		args = []string{"read-tree", treeish}
	}
	_, err := r.gitIndex(ctx, index, nil, args...)
	return err
}

// AddPaths records the working tree state of paths in index, deletions included.
func (r *Repository) AddPaths(ctx context.Context, index string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "-A", "--"}, paths...)
	_, err := r.gitIndex(ctx, index, nil, args...)
	return err
}

// ApplyCached applies patch to index only. The working tree is not touched.
func (r *Repository) ApplyCached(ctx context.Context, index, patch string) error {
	_, err := r.gitIndex(ctx, index, strings.NewReader(patch), "apply", "--cached", "--whitespace=nowarn", "-")
	return err
}

// WriteTree writes index as a tree object and returns its id.
func (r *Repository) WriteTree(ctx context.Context, index string) (string, error) {
	out, err := r.gitIndex(ctx, index, nil, "write-tree")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CommitTree creates a commit object for tree with the given parents.
func (r *Repository) CommitTree(ctx context.Context, tree string, parents []string, message string) (string, error) {
	args := []string{"commit-tree", tree}
	for _, p := range parents {
		args = append(args, "-p", p)
	}
	args = append(args, "-F", "-")

	cmd := r.command(args...)
	cmd.stdin = strings.NewReader(message)
	res, err := cmd.run(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// UpdateRef moves ref to newID only if it still equals oldID.
// An empty oldID requires the ref not to exist yet.
func (r *Repository) UpdateRef(ctx context.Context, ref, newID, oldID, reason string) error {
	args := []string{"update-ref"}
	if reason != "" {
		args = append(args, "-m", reason)
	}
	args = append(args, ref, newID, oldID)
	res, err := r.command(args...).run(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && res != nil && refMoved(res.Stderr) {
		return fmt.Errorf("%w: %v", ErrRefChanged, err)
	}
	return err
}

// refMoved reports whether update-ref failed on the old-value check rather
// than on locking or permissions.
func refMoved(stderr string) bool {
	for _, s := range []string{"but expected", "reference already exists", "unable to resolve reference"} {
		if strings.Contains(stderr, s) {
			return true
		}
	}
	return false
}

// ResetPaths sets the real index entries of paths to their state in commit.
func (r *Repository) ResetPaths(ctx context.Context, commit string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"reset", "-q", commit, "--"}, paths...)
	_, err := r.git(ctx, args...)
	return err
}

// ListIndexPaths returns the paths recorded in index.
func (r *Repository) ListIndexPaths(ctx context.Context, index string) ([]string, error) {
	out, err := r.gitIndex(ctx, index, nil, "ls-files", "-z")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, p := range strings.Split(out, "\x00") {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// TreeID returns the tree of rev.
func (r *Repository) TreeID(ctx context.Context, rev string) (string, error) {
	out, err := r.git(ctx, "rev-parse", "--verify", rev+"^{tree}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// StagedPatch returns a binary-safe patch of the index against HEAD for paths.
func (r *Repository) StagedPatch(ctx context.Context, paths []string) (string, error) {
	args := append([]string{"diff"}, diffFlags...)
	args = append(args, "--cached", "--binary", "-M", "--")
	args = append(args, paths...)
	return r.git(ctx, args...)
}
