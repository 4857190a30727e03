// Package diff parses unified diff text into hunks with content-addressed ids
// and rebuilds per-file patches from a selection of those hunks.
package diff

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gitpanel/shared/types"
	"gitpanel/shared/utils"
)

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// fileMarkers start a new file section of a diff.
var fileMarkers = []string{"diff --git ", "diff --cc ", "diff --combined "}

// Range holds the four integers of a hunk header.
type Range struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
}

// HunkID renders the stable identity of a hunk.
func HunkID(r Range, contentHash string) string {
	return fmt.Sprintf("%d:%d:%d:%d:%s", r.OldStart, r.OldLines, r.NewStart, r.NewLines, contentHash)
}

// ParseID splits a hunk id back into its range and content hash.
func ParseID(id string) (Range, string, error) {
	parts := strings.Split(id, ":")
	if len(parts) != 5 || parts[4] == "" {
		return Range{}, "", fmt.Errorf("malformed hunk id %q", id)
	}
	nums := make([]int, 4)
	for i := 0; i < 4; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			return Range{}, "", fmt.Errorf("malformed hunk id %q", id)
		}
		nums[i] = n
	}
	return Range{nums[0], nums[1], nums[2], nums[3]}, parts[4], nil
}

// ParseHeader extracts the range from an "@@ -a,b +c,d @@" line.
// Missing counts default to 1.
func ParseHeader(line string) (Range, bool) {
	m := hunkHeaderRe.FindStringSubmatch(line)
	if m == nil {
		return Range{}, false
	}
	atoi := func(s string, def int) int {
		if s == "" {
			return def
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return def
		}
		return n
	}
	return Range{
		OldStart: atoi(m[1], 0),
		OldLines: atoi(m[2], 1),
		NewStart: atoi(m[3], 0),
		NewLines: atoi(m[4], 1),
	}, true
}

// Parse scans diff text and returns its hunks in order.
// fallbackPath is used when a file header does not name a path.
func Parse(text, fallbackPath string, kind shared.DiffKind) []shared.DiffHunk {
	var (
		hunks      []shared.DiffHunk
		path       = fallbackPath
		fileHeader strings.Builder
		current    *shared.DiffHunk
		rng        Range
		body       strings.Builder
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Body = body.String()
		current.ContentHash = utils.HashString(current.Body)
		current.ID = HunkID(rng, current.ContentHash)
		hunks = append(hunks, *current)
		current = nil
		body.Reset()
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		bare := strings.TrimRight(line, "\r\n")

		if isFileMarker(bare) {
			flush()
			fileHeader.Reset()
			fileHeader.WriteString(line)
			path = pathFromDiffLine(bare, fallbackPath)
			continue
		}

		if r, ok := ParseHeader(bare); ok {
			flush()
			rng = r
			current = &shared.DiffHunk{
				Path:       path,
				Kind:       kind,
				Header:     bare,
				OldStart:   r.OldStart,
				OldLines:   r.OldLines,
				NewStart:   r.NewStart,
				NewLines:   r.NewLines,
				FileHeader: fileHeader.String(),
			}
			continue
		}

		if current != nil {
			body.WriteString(line)
			continue
		}

		// metadata: index, ---, +++, mode, rename and similarity lines
		fileHeader.WriteString(line)
		if strings.HasPrefix(bare, "+++ ") {
			if p := stripPrefix(strings.TrimPrefix(bare, "+++ ")); p != "" {
				path = p
			}
		}
	}
	flush()

	return hunks
}

func isFileMarker(line string) bool {
	for _, m := range fileMarkers {
		if strings.HasPrefix(line, m) {
			return true
		}
	}
	return false
}

// pathFromDiffLine extracts the new-side path of a "diff --git a/X b/Y" line.
func pathFromDiffLine(line, fallback string) string {
	switch {
	case strings.HasPrefix(line, "diff --cc "):
		return nonEmpty(strings.TrimSpace(strings.TrimPrefix(line, "diff --cc ")), fallback)
	case strings.HasPrefix(line, "diff --combined "):
		return nonEmpty(strings.TrimSpace(strings.TrimPrefix(line, "diff --combined ")), fallback)
	}

	rest := strings.TrimPrefix(line, "diff --git ")
	if strings.HasSuffix(rest, `"`) {
		if idx := strings.LastIndex(rest, ` "`); idx >= 0 {
			if p, err := strconv.Unquote(rest[idx+1:]); err == nil {
				return nonEmpty(strings.TrimPrefix(p, "b/"), fallback)
			}
		}
		return fallback
	}
	if idx := strings.LastIndex(rest, " b/"); idx >= 0 {
		return nonEmpty(rest[idx+3:], fallback)
	}
	return fallback
}

// stripPrefix turns a ---/+++ operand into a repo path; /dev/null yields "".
func stripPrefix(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexByte(p, '\t'); i >= 0 {
		p = p[:i]
	}
	if strings.HasPrefix(p, `"`) {
		if u, err := strconv.Unquote(p); err == nil {
			p = u
		}
	}
	if p == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		return p[2:]
	}
	return p
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// FilterForPath keeps hunks for path. If none match, all hunks are returned,
// which covers diffs whose headers name the file differently (e.g. --no-index).
func FilterForPath(hunks []shared.DiffHunk, path string) []shared.DiffHunk {
	want := utils.NormalizeRepoPath(path)
	var out []shared.DiffHunk
	for _, h := range hunks {
		if utils.NormalizeRepoPath(h.Path) == want {
			out = append(out, h)
		}
	}
	if len(out) == 0 {
		return hunks
	}
	return out
}

// Find returns the live hunk matching both id and content hash.
func Find(hunks []shared.DiffHunk, id, contentHash string) (shared.DiffHunk, bool) {
	for _, h := range hunks {
		if h.ID == id && h.ContentHash == contentHash {
			return h, true
		}
	}
	return shared.DiffHunk{}, false
}
