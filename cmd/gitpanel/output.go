package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"gitpanel/shared/types"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

var statusMarks = map[shared.StatusKind]func(...any) string{
	shared.StatusStaged:     green,
	shared.StatusUnstaged:   yellow,
	shared.StatusBoth:       yellow,
	shared.StatusUntracked:  blue,
	shared.StatusConflicted: red,
}

var statusLetters = map[shared.StatusKind]string{
	shared.StatusStaged:     "S",
	shared.StatusUnstaged:   "M",
	shared.StatusBoth:       "B",
	shared.StatusUntracked:  "?",
	shared.StatusConflicted: "U",
}

// emit prints v as JSON with --json, otherwise calls human.
func emit(v any, human func(w io.Writer)) error {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(os.Stdout)
	return nil
}

func headLine(h shared.RepoHead) string {
	switch {
	case h.Unborn:
		return fmt.Sprintf("On branch %s (no commits yet)", h.BranchName)
	case h.Detached:
		return fmt.Sprintf("HEAD detached at %s", h.OIDShort)
	default:
		return fmt.Sprintf("On branch %s at %s", h.BranchName, h.OIDShort)
	}
}

// printStatus lists files grouped by changelist, in first-seen order.
func printStatus(w io.Writer, status *shared.RepoStatus) {
	fmt.Fprintln(w, headLine(status.Head))
	if len(status.Files) == 0 {
		fmt.Fprintln(w, "No changes (working tree clean)")
		return
	}

	var order []string
	groups := map[string][]shared.StatusEntry{}
	for _, f := range status.Files {
		name := f.ChangelistName
		if f.Status == shared.StatusUntracked {
			name = "Unversioned files"
		}
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], f)
	}

	for _, name := range order {
		fmt.Fprintf(w, "\n%s:\n", name)
		for _, f := range groups[name] {
			mark := statusMarks[f.Status](statusLetters[f.Status])
			path := f.Path
			if f.OldPath != "" {
				path = f.OldPath + " -> " + f.Path
			}
			if f.ChangelistPartial {
				path += " " + cyan("(partial)")
			}
			fmt.Fprintf(w, "\t%s %s\n", mark, path)
		}
	}
}

func printDiff(w io.Writer, diff string) {
	for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprintln(w, line)
		case strings.HasPrefix(line, "@@"):
			fmt.Fprintln(w, cyan(line))
		case strings.HasPrefix(line, "+"):
			fmt.Fprintln(w, green(line))
		case strings.HasPrefix(line, "-"):
			fmt.Fprintln(w, red(line))
		default:
			fmt.Fprintln(w, line)
		}
	}
}

func printBranches(w io.Writer, b *shared.BranchList) {
	for _, name := range b.Locals {
		marker := "  "
		if name == b.Current {
			marker = green("* ")
		}
		line := marker + name
		if ab, ok := b.AheadBehind[name]; ok && (ab.Ahead > 0 || ab.Behind > 0) {
			line += fmt.Sprintf(" [ahead %d, behind %d]", ab.Ahead, ab.Behind)
		}
		fmt.Fprintln(w, line)
	}
	remotes := append([]string(nil), b.Remotes...)
	sort.Strings(remotes)
	for _, name := range remotes {
		fmt.Fprintln(w, "  "+red("remotes/"+name))
	}
}
