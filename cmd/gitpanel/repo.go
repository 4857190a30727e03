package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"gitpanel/shared/types"
)

func init() {
	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show changed files grouped by changelist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := openRepo(ctx)
			if err != nil {
				return err
			}
			status, err := api.Status(ctx, id)
			if err != nil {
				return fmt.Errorf("getting status: %w", err)
			}
			return emit(status, func(w io.Writer) { printStatus(w, status) })
		},
	}

	var diffCmd = &cobra.Command{
		Use:   "diff <path>...",
		Short: "Show the diff of changed files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kind := shared.DiffUnstaged
			if staged, _ := cmd.Flags().GetBool("staged"); staged {
				kind = shared.DiffStaged
			}
			id, err := openRepo(ctx)
			if err != nil {
				return err
			}
			if hunks, _ := cmd.Flags().GetBool("hunks"); hunks {
				var all []shared.DiffHunk
				for _, p := range args {
					h, err := api.DiffHunks(ctx, id, p, kind)
					if err != nil {
						return fmt.Errorf("listing hunks of %s: %w", p, err)
					}
					all = append(all, h...)
				}
				return emit(all, func(w io.Writer) {
					for _, h := range all {
						fmt.Fprintf(w, "%s %s %s\n", cyan(h.ID), h.Path, h.Header)
					}
				})
			}
			for _, p := range args {
				text, err := api.Diff(ctx, id, p, kind)
				if err != nil {
					return fmt.Errorf("showing diff for %s: %w", p, err)
				}
				printDiff(cmd.OutOrStdout(), text)
			}
			return nil
		},
	}
	diffCmd.Flags().Bool("staged", false, "Compare the index with HEAD")
	diffCmd.Flags().Bool("hunks", false, "List hunk ids instead of the diff text")

	rootCmd.AddCommand(statusCmd, diffCmd,
		pathCommand("stage", "Stage files", func(c pathCall) error { return api.Stage(c.ctx, c.id, c.path) }),
		pathCommand("unstage", "Unstage files", func(c pathCall) error { return api.Unstage(c.ctx, c.id, c.path) }),
		pathCommand("track", "Mark untracked files as intent-to-add", func(c pathCall) error { return api.Track(c.ctx, c.id, c.path) }),
		pathCommand("rm-untracked", "Delete untracked files", func(c pathCall) error { return api.DeleteUntracked(c.ctx, c.id, c.path) }),
	)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "recent",
		Short: "List recently opened repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := api.Recent(cmd.Context())
			if err != nil {
				return err
			}
			return emit(items, func(w io.Writer) {
				for _, it := range items {
					fmt.Fprintf(w, "%s\t%s\n", it.Name, it.Path)
				}
			})
		},
	})
}

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Print the status every time the repository changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := openRepo(ctx)
			if err != nil {
				return err
			}
			events, err := api.Events(ctx, id)
			if err != nil {
				return fmt.Errorf("subscribing: %w", err)
			}
			for range events {
				status, err := api.Status(ctx, id)
				if err != nil {
					return err
				}
				if err := emit(status, func(w io.Writer) {
					fmt.Fprintln(w)
					printStatus(w, status)
				}); err != nil {
					return err
				}
			}
			return nil
		},
	})
}
