package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitpanel/shared/types"
)

func init() {
	color.NoColor = true
}

func TestPrintStatus(t *testing.T) {
	tests := []struct {
		name   string
		status *shared.RepoStatus
		want   string
	}{
		{
			name:   "clean",
			status: &shared.RepoStatus{Head: shared.RepoHead{BranchName: "main", OIDShort: "abc1234"}},
			want:   "On branch main at abc1234\nNo changes (working tree clean)\n",
		},
		{
			name: "grouped by changelist",
			status: &shared.RepoStatus{
				Head: shared.RepoHead{BranchName: "main", Unborn: true},
				Files: []shared.StatusEntry{
					{Path: "a.txt", Status: shared.StatusUnstaged, ChangelistName: "Default"},
					{Path: "b.txt", OldPath: "old.txt", Status: shared.StatusStaged, ChangelistName: "Fix"},
					{Path: "c.txt", Status: shared.StatusUntracked, ChangelistName: "Default"},
					{Path: "d.txt", Status: shared.StatusBoth, ChangelistName: "Fix", ChangelistPartial: true},
				},
			},
			want: "On branch main (no commits yet)\n" +
				"\nDefault:\n\tM a.txt\n" +
				"\nFix:\n\tS old.txt -> b.txt\n\tB d.txt (partial)\n" +
				"\nUnversioned files:\n\t? c.txt\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printStatus(&buf, tt.status)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPrintDiff(t *testing.T) {
	var buf bytes.Buffer
	printDiff(&buf, "--- a/x\n+++ b/x\n@@ -1 +1 @@\n-old\n+new\n")
	assert.Equal(t, "--- a/x\n+++ b/x\n@@ -1 +1 @@\n-old\n+new\n", buf.String())
}

func TestPrintBranches(t *testing.T) {
	var buf bytes.Buffer
	printBranches(&buf, &shared.BranchList{
		Current:     "main",
		Locals:      []string{"feature", "main"},
		Remotes:     []string{"origin/main", "origin/dev"},
		AheadBehind: map[string]shared.AheadBehind{"main": {Ahead: 2}},
	})
	assert.Equal(t, "  feature\n* main [ahead 2, behind 0]\n  remotes/origin/dev\n  remotes/origin/main\n", buf.String())
}

func TestSelectHunks(t *testing.T) {
	live := []shared.DiffHunk{
		{ID: "h1", Path: "a.txt", Kind: shared.DiffUnstaged, Header: "@@ -1 +1 @@"},
		{ID: "h2", Path: "a.txt", Kind: shared.DiffStaged, Header: "@@ -5 +5 @@"},
	}

	got, err := selectHunks(live, []string{"h2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "h2", got[0].ID)
	assert.Equal(t, shared.DiffStaged, got[0].Kind)

	_, err = selectHunks(live, []string{"h3"})
	assert.Error(t, err)
}

func TestCommitRequest(t *testing.T) {
	cmd := rootCmd
	for _, c := range rootCmd.Commands() {
		if c.Name() == "commit" {
			cmd = c
		}
	}
	require.Equal(t, "commit", cmd.Name())

	_, err := commitRequest(cmd)
	assert.Error(t, err)

	require.NoError(t, cmd.Flags().Set("amend", "true"))
	require.NoError(t, cmd.Flags().Set("sync-index", "true"))
	req, err := commitRequest(cmd)
	require.NoError(t, err)
	assert.True(t, req.Amend)
	assert.True(t, req.SyncIndex)
}
