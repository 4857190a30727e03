package diff

import (
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"gitpanel/shared/types"
)

// BuildPatch reassembles a single-file patch from a file header and a subset
// of that file's hunks. Hunks are emitted in the order given.
func BuildPatch(fileHeader string, hunks []shared.DiffHunk) string {
	var b strings.Builder
	b.WriteString(fileHeader)
	if fileHeader != "" && !strings.HasSuffix(fileHeader, "\n") {
		b.WriteByte('\n')
	}
	for _, h := range hunks {
		b.WriteString(h.Header)
		b.WriteByte('\n')
		b.WriteString(h.Body)
		if h.Body != "" && !strings.HasSuffix(h.Body, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// ValidatePatch checks that patch describes exactly one file and that every
// text fragment is self-consistent. It is run on synthetic patches before
// they are handed to git apply so a malformed selection fails early.
func ValidatePatch(patch string) error {
	files, _, err := gitdiff.Parse(strings.NewReader(patch))
	if err != nil {
		return fmt.Errorf("parse patch: %w", err)
	}
	if len(files) != 1 {
		return fmt.Errorf("patch describes %d files, want 1", len(files))
	}
	f := files[0]
	if f.IsBinary {
		return fmt.Errorf("binary patch for %s cannot be applied by hunk", patchName(f))
	}
	if len(f.TextFragments) == 0 {
		return fmt.Errorf("patch for %s has no hunks", patchName(f))
	}
	for i, frag := range f.TextFragments {
		if err := frag.Validate(); err != nil {
			return fmt.Errorf("hunk %d of %s: %w", i+1, patchName(f), err)
		}
	}
	return nil
}

func patchName(f *gitdiff.File) string {
	if f.NewName != "" {
		return f.NewName
	}
	return f.OldName
}
