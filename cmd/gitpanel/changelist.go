package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"gitpanel/internal/changelist"
	"gitpanel/internal/commit"
	"gitpanel/internal/workspace"
	"gitpanel/shared/types"
)

func init() {
	var changelistCmd = &cobra.Command{
		Use:     "changelist",
		Aliases: []string{"cl"},
		Short:   "Manage changelists",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := openRepo(ctx)
			if err != nil {
				return err
			}
			state, err := api.Changelists(ctx, id)
			if err != nil {
				return err
			}
			return emit(state, func(w io.Writer) { printChangelists(w, state) })
		},
	}

	changelistCmd.AddCommand(
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create a changelist",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				id, err := openRepo(ctx)
				if err != nil {
					return err
				}
				cl, err := api.CreateChangelist(ctx, id, args[0])
				if err != nil {
					return err
				}
				return emit(cl, func(w io.Writer) { fmt.Fprintf(w, "Created changelist %s (%s)\n", cl.Name, cyan(cl.ID)) })
			},
		},
		&cobra.Command{
			Use:   "rename <id> <name>",
			Short: "Rename a changelist",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				id, err := openRepo(ctx)
				if err != nil {
					return err
				}
				return api.RenameChangelist(ctx, id, args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a changelist and its assignments",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				id, err := openRepo(ctx)
				if err != nil {
					return err
				}
				return api.DeleteChangelist(ctx, id, args[0])
			},
		},
		&cobra.Command{
			Use:   "activate <id>",
			Short: "Make a changelist the default for new changes",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				id, err := openRepo(ctx)
				if err != nil {
					return err
				}
				return api.ActivateChangelist(ctx, id, args[0])
			},
		},
		&cobra.Command{
			Use:   "assign <id> <path>...",
			Short: "Move whole files to a changelist",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				id, err := openRepo(ctx)
				if err != nil {
					return err
				}
				return api.AssignFiles(ctx, id, args[0], args[1:])
			},
		},
		&cobra.Command{
			Use:   "unassign <path>...",
			Short: "Return files to the active changelist",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				id, err := openRepo(ctx)
				if err != nil {
					return err
				}
				return api.UnassignFiles(ctx, id, args)
			},
		},
		&cobra.Command{
			Use:   "assign-hunks <id> <path> <hunk-id>...",
			Short: "Move single hunks of a file to a changelist",
			Long:  "Hunk ids are listed by `gitpanel diff --hunks <path>`.",
			Args:  cobra.MinimumNArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				id, err := openRepo(ctx)
				if err != nil {
					return err
				}
				cl, path, want := args[0], args[1], args[2:]

				var live []shared.DiffHunk
				for _, kind := range []shared.DiffKind{shared.DiffStaged, shared.DiffUnstaged} {
					hunks, err := api.DiffHunks(ctx, id, path, kind)
					if err != nil {
						return err
					}
					live = append(live, hunks...)
				}
				selected, err := selectHunks(live, want)
				if err != nil {
					return err
				}
				return api.AssignHunks(ctx, id, cl, path, selected)
			},
		},
	)

	var previewCmd = &cobra.Command{
		Use:   "preview <changelist-id>",
		Short: "Show what committing a changelist would include",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := openRepo(ctx)
			if err != nil {
				return err
			}
			p, err := api.Preview(ctx, id, args[0])
			if err != nil {
				return err
			}
			return emit(p, func(w io.Writer) { printPreview(w, p) })
		},
	}

	var commitCmd = &cobra.Command{
		Use:   "commit <changelist-id>",
		Short: "Commit a changelist without touching other changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			req, err := commitRequest(cmd)
			if err != nil {
				return err
			}
			id, err := openRepo(ctx)
			if err != nil {
				return err
			}
			res, err := api.Commit(ctx, id, args[0], req)
			if err != nil {
				return fmt.Errorf("committing: %w", err)
			}
			return emit(res, func(w io.Writer) { printResult(w, res) })
		},
	}

	var commitStagedCmd = &cobra.Command{
		Use:   "commit-staged <path>...",
		Short: "Commit the staged content of files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			req, err := commitRequest(cmd)
			if err != nil {
				return err
			}
			id, err := openRepo(ctx)
			if err != nil {
				return err
			}
			res, err := api.CommitStaged(ctx, id, args, req)
			if err != nil {
				return fmt.Errorf("committing: %w", err)
			}
			return emit(res, func(w io.Writer) { printResult(w, res) })
		},
	}

	for _, c := range []*cobra.Command{commitCmd, commitStagedCmd} {
		c.Flags().StringP("message", "m", "", "Commit message")
		c.Flags().Bool("amend", false, "Replace the HEAD commit")
		c.Flags().Bool("sync-index", false, "Move committed entries of the index to the new commit")
	}

	rootCmd.AddCommand(changelistCmd, previewCmd, commitCmd, commitStagedCmd)
}

func commitRequest(cmd *cobra.Command) (workspace.CommitRequest, error) {
	message, _ := cmd.Flags().GetString("message")
	amend, _ := cmd.Flags().GetBool("amend")
	sync, _ := cmd.Flags().GetBool("sync-index")
	if message == "" && !amend {
		return workspace.CommitRequest{}, fmt.Errorf("a commit message is required (-m)")
	}
	return workspace.CommitRequest{Message: message, Amend: amend, SyncIndex: sync}, nil
}

// selectHunks picks the live hunks named by ids, failing on any unknown id.
func selectHunks(live []shared.DiffHunk, ids []string) ([]changelist.HunkAssignment, error) {
	byID := make(map[string]shared.DiffHunk, len(live))
	for _, h := range live {
		byID[h.ID] = h
	}
	out := make([]changelist.HunkAssignment, 0, len(ids))
	for _, id := range ids {
		h, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("no hunk %s in the current diff", id)
		}
		out = append(out, changelist.AssignmentFromHunk(h))
	}
	return out, nil
}

func printChangelists(w io.Writer, state *changelist.State) {
	files := map[string]int{}
	for _, owner := range state.Assignments {
		files[owner]++
	}
	for _, set := range state.HunkAssignments {
		files[set.ChangelistID]++
	}
	for _, l := range state.Lists {
		marker := "  "
		if l.ID == state.ActiveID {
			marker = green("* ")
		}
		fmt.Fprintf(w, "%s%s %s (%d files)\n", marker, l.Name, cyan(l.ID), files[l.ID])
	}
}

func printPreview(w io.Writer, p *commit.Preview) {
	fmt.Fprintf(w, "Changelist %s\n", p.ChangelistName)
	for _, f := range p.Files {
		if f.ChangelistPartial {
			continue
		}
		fmt.Fprintf(w, "\t%s %s\n", statusMarks[f.Status](statusLetters[f.Status]), f.Path)
	}
	for _, path := range p.HunkFiles {
		fmt.Fprintf(w, "\t%s %s\n", cyan("H"), path)
	}
	for _, warning := range p.Warnings {
		fmt.Fprintln(w, yellow("warning: ")+warning)
	}
	for _, h := range p.InvalidHunks {
		fmt.Fprintf(w, "%s %s %s\n", red("stale hunk:"), h.Path, h.Hunk.Header)
	}
}

func printResult(w io.Writer, res *commit.Result) {
	fmt.Fprintf(w, "[%s %s] %d files\n", res.Head.BranchName, green(shortOID(res.CommitID)), len(res.CommittedPaths))
}
