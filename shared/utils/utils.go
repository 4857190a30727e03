package utils

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"
)

// HashContent returns the FNV-1a 64 digest of content as 16 hex characters.
// It is not a security hash; it only needs to be fast and stable across runs.
func HashContent(content []byte) string {
	h := fnv.New64a()
	h.Write(content)
	return fmt.Sprintf("%016x", h.Sum64())
}

// HashString is HashContent for strings.
func HashString(s string) string {
	return HashContent([]byte(s))
}

// RepoIDForPath derives a stable repository id from a worktree path.
// The path is made absolute and symlinks are resolved when possible.
func RepoIDForPath(path string) string {
	return HashString(CanonicalPath(path))
}

// CanonicalPath returns the absolute, symlink-resolved, cleaned form of path.
func CanonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.Clean(abs)
}

// NormalizeRepoPath converts a repo-relative path to forward slashes without a leading "./".
func NormalizeRepoPath(path string) string {
	p := strings.ReplaceAll(path, "\\", "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return p
}
