package git

import "errors"

var (
	// ErrNotRepository indicates the path is not inside a git working tree.
	ErrNotRepository = errors.New("not a git repository")

	// ErrDirtyWorkingTree indicates uncommitted changes block the operation.
	ErrDirtyWorkingTree = errors.New("working tree has uncommitted changes")

	// ErrConflict indicates a merge conflict exists.
	ErrConflict = errors.New("merge conflict")

	ErrBranchExists    = errors.New("branch already exists")
	ErrInvalidBranch   = errors.New("invalid branch name")
	ErrPathNotFound    = errors.New("path not found")
	ErrPathOutsideRepo = errors.New("path escapes the working tree")

	// ErrRefChanged indicates update-ref lost a compare-and-swap race.
	ErrRefChanged = errors.New("ref changed concurrently")
)
