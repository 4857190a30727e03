package git

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gitpanel/shared/types"
)

var diffFlags = []string{"--no-color", "--no-ext-diff", "--src-prefix=a/", "--dst-prefix=b/"}

// Diff returns unified diff text for one path against the given baseline.
// An untracked path diffs against /dev/null so every line is an addition.
func (r *Repository) Diff(ctx context.Context, path string, kind shared.DiffKind) (string, error) {
	if _, err := r.resolvePath(path); err != nil {
		return "", err
	}

	args := []string{"diff"}
	args = append(args, diffFlags...)
	if kind == shared.DiffStaged {
		args = append(args, "--cached")
	}
	args = append(args, "--", path)

	out, err := r.git(ctx, args...)
	if err != nil {
		return "", err
	}
	if out != "" || kind == shared.DiffStaged {
		return out, nil
	}

	tracked, err := r.isTracked(ctx, path)
	if err != nil || tracked {
		return out, err
	}
	return r.diffUntracked(ctx, path)
}

func (r *Repository) diffUntracked(ctx context.Context, path string) (string, error) {
	full, err := r.resolvePath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Lstat(full); err != nil {
		return "", nil
	}

	args := append([]string{"diff"}, diffFlags...)
	args = append(args, "--no-index", "--", "/dev/null", path)
	cmd := r.command(args...)
	cmd.okExit = []int{1}
	res, err := cmd.run(ctx)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func (r *Repository) isTracked(ctx context.Context, path string) (bool, error) {
	_, ok, err := r.gitOptional(ctx, "ls-files", "--error-unmatch", "--", path)
	return ok, err
}

// DiffSide is one side of a diff. A side that does not exist is the zero value.
type DiffSide struct {
	Mode string
	ID   string
}

// String renders the side for use in cache keys.
func (s DiffSide) String() string {
	if s.ID == "" {
		return ""
	}
	return s.Mode + ":" + s.ID
}

// DiffSides returns the blob id and file mode of the old and new sides of a
// diff. A chmod without a content change yields a different side.
func (r *Repository) DiffSides(ctx context.Context, path string, kind shared.DiffKind) (oldSide, newSide DiffSide, err error) {
	index, err := r.indexSide(ctx, path)
	if err != nil {
		return DiffSide{}, DiffSide{}, err
	}

	switch kind {
	case shared.DiffStaged:
		head, err := r.headSide(ctx, path)
		if err != nil {
			return DiffSide{}, DiffSide{}, err
		}
		return head, index, nil
	case shared.DiffUnstaged:
		full, err := r.resolvePath(path)
		if err != nil {
			return DiffSide{}, DiffSide{}, err
		}
		info, err := os.Lstat(full)
		if err != nil {
			return index, DiffSide{}, nil
		}
		id, err := r.git(ctx, "hash-object", "--", path)
		if err != nil {
			return DiffSide{}, DiffSide{}, err
		}
		return index, DiffSide{Mode: worktreeMode(info), ID: strings.TrimSpace(id)}, nil
	default:
		return DiffSide{}, DiffSide{}, fmt.Errorf("unknown diff kind %q", kind)
	}
}

// indexSide returns the stage-0 entry recorded in the index for path.
func (r *Repository) indexSide(ctx context.Context, path string) (DiffSide, error) {
	out, err := r.git(ctx, "ls-files", "-s", "--", path)
	if err != nil {
		return DiffSide{}, err
	}
	// <mode> SP <object> SP <stage> TAB <file>
	for _, line := range splitLines(out) {
		meta, file, ok := strings.Cut(line, "\t")
		if !ok || file != path {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) == 3 && fields[2] == "0" {
			return DiffSide{Mode: fields[0], ID: fields[1]}, nil
		}
	}
	return DiffSide{}, nil
}

// headSide returns the entry of path in HEAD's tree, zero on an unborn branch.
func (r *Repository) headSide(ctx context.Context, path string) (DiffSide, error) {
	out, ok, err := r.gitOptional(ctx, "ls-tree", "HEAD", "--", path)
	if err != nil || !ok {
		return DiffSide{}, err
	}
	// <mode> SP <type> SP <object> TAB <file>
	for _, line := range splitLines(out) {
		meta, file, ok := strings.Cut(line, "\t")
		if !ok || file != path {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) == 3 {
			return DiffSide{Mode: fields[0], ID: fields[2]}, nil
		}
	}
	return DiffSide{}, nil
}

func worktreeMode(info os.FileInfo) string {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return "120000"
	case info.Mode()&0o111 != 0:
		return "100755"
	default:
		return "100644"
	}
}
