// Package git drives the git command line for one working tree.
//
// Every method shells out to the configured git binary and blocks until it
// exits, so callers run them on a worker pool. Commands that build commits
// without touching the user's staging area take an explicit index file and
// run with GIT_INDEX_FILE pointed at it.
package git

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Repository is one working tree plus the git directory that backs it.
type Repository struct {
	worktree  string
	gitDir    string
	commonDir string
	binary    string
}

// Open resolves path to its working tree root and git directory.
// Linked worktrees resolve to their own git directory under the main repository.
func Open(ctx context.Context, path, binary string) (*Repository, error) {
	if binary == "" {
		binary = "git"
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return nil, ErrNotRepository
	}

	cmd := &gitCommand{binary: binary, dir: abs, args: []string{"rev-parse", "--show-toplevel", "--absolute-git-dir", "--git-common-dir"}}
	res, err := cmd.run(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, abs)
	}
	lines := splitLines(res.Stdout)
	if len(lines) < 3 || lines[0] == "" {
		return nil, ErrNotRepository
	}

	common := lines[2]
	if !filepath.IsAbs(common) {
		// relative to the directory the command ran in
		common = filepath.Join(abs, common)
	}

	return &Repository{
		worktree:  filepath.Clean(lines[0]),
		gitDir:    filepath.Clean(lines[1]),
		commonDir: filepath.Clean(common),
		binary:    binary,
	}, nil
}

// Worktree returns the working tree root.
func (r *Repository) Worktree() string { return r.worktree }

// GitDir returns the per-worktree git directory.
func (r *Repository) GitDir() string { return r.gitDir }

// CommonDir returns the git directory shared by all worktrees of the repository.
func (r *Repository) CommonDir() string { return r.commonDir }

// result is the captured output of one git invocation.
type result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// gitCommand is a single git invocation.
type gitCommand struct {
	binary string
	dir    string
	args   []string
	env    []string
	stdin  io.Reader
	// okExit lists non-zero exit codes that are not failures (diff --no-index exits 1).
	okExit []int
}

func (c *gitCommand) run(ctx context.Context) (*result, error) {
	cmd := exec.CommandContext(ctx, c.binary, c.args...)
	cmd.Dir = c.dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, c.env...)
	if c.stdin != nil {
		cmd.Stdin = c.stdin
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		for _, code := range c.okExit {
			if code == res.ExitCode {
				return res, nil
			}
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = err.Error()
	}
	return res, fmt.Errorf("git %s: %s", strings.Join(c.args, " "), msg)
}

func (r *Repository) command(args ...string) *gitCommand {
	return &gitCommand{binary: r.binary, dir: r.worktree, args: args}
}

// git runs a command in the working tree and returns stdout.
func (r *Repository) git(ctx context.Context, args ...string) (string, error) {
	res, err := r.command(args...).run(ctx)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// gitIndex runs a command against a private index file.
func (r *Repository) gitIndex(ctx context.Context, index string, stdin io.Reader, args ...string) (string, error) {
	cmd := r.command(args...)
	cmd.env = []string{"GIT_INDEX_FILE=" + index}
	cmd.stdin = stdin
	res, err := cmd.run(ctx)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// gitOptional runs a command whose failure means "absent" rather than an error.
// It returns ok=false when git exits non-zero.
func (r *Repository) gitOptional(ctx context.Context, args ...string) (string, bool, error) {
	res, err := r.command(args...).run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		if res != nil && res.ExitCode > 0 {
			return "", false, nil
		}
		return "", false, err
	}
	return res.Stdout, true, nil
}

// resolvePath joins a repo-relative path to the working tree, refusing escapes.
func (r *Repository) resolvePath(path string) (string, error) {
	if path == "" || filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: %q", ErrPathOutsideRepo, path)
	}
	full := filepath.Join(r.worktree, filepath.FromSlash(path))
	rel, err := filepath.Rel(r.worktree, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathOutsideRepo, path)
	}
	return full, nil
}

func splitLines(s string) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}
