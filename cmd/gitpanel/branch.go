package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"gitpanel/shared/types"
)

func init() {
	var branchCmd = &cobra.Command{
		Use:   "branch",
		Short: "List or create branches",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := openRepo(ctx)
			if err != nil {
				return err
			}
			branches, err := api.Branches(ctx, id)
			if err != nil {
				return err
			}
			return emit(branches, func(w io.Writer) { printBranches(w, branches) })
		},
	}

	var createBranchCmd = &cobra.Command{
		Use:   "create <name>",
		Short: "Create a branch without switching to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			from, _ := cmd.Flags().GetString("from")
			id, err := openRepo(ctx)
			if err != nil {
				return err
			}
			if err := api.CreateBranch(ctx, id, args[0], from); err != nil {
				return fmt.Errorf("creating branch: %w", err)
			}
			fmt.Println("Created branch", green(args[0]))
			return nil
		},
	}
	createBranchCmd.Flags().String("from", "", "Start point (defaults to HEAD)")
	branchCmd.AddCommand(createBranchCmd)

	var checkoutCmd = &cobra.Command{
		Use:   "checkout <branch>",
		Short: "Switch to a local or remote branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target := shared.CheckoutTarget{Kind: shared.CheckoutLocal, Name: args[0]}
			if remote, _ := cmd.Flags().GetBool("remote"); remote {
				target.Kind = shared.CheckoutRemote
			}
			id, err := openRepo(ctx)
			if err != nil {
				return err
			}
			res, err := api.Checkout(ctx, id, target)
			if err != nil {
				return err
			}
			return emit(res, func(w io.Writer) { fmt.Fprintln(w, headLine(res.Head)) })
		},
	}
	checkoutCmd.Flags().Bool("remote", false, "Check out a remote branch as a new tracking branch")

	rootCmd.AddCommand(branchCmd, checkoutCmd,
		remoteCommand("fetch", "Fetch from a remote"),
		remoteCommand("pull", "Pull the current branch"),
		remoteCommand("push", "Push the current branch"),
	)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "worktrees",
		Short: "List linked worktrees",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := openRepo(ctx)
			if err != nil {
				return err
			}
			trees, err := api.Worktrees(ctx, id)
			if err != nil {
				return err
			}
			return emit(trees, func(w io.Writer) {
				for _, t := range trees {
					ref := t.Branch
					if t.Detached {
						ref = "(detached)"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", t.Path, shortOID(t.Head), ref)
				}
			})
		},
	})
}

func remoteCommand(op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " [remote]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			remote := ""
			if len(args) == 1 {
				remote = args[0]
			}
			id, err := openRepo(ctx)
			if err != nil {
				return err
			}
			res, err := api.Remote(ctx, id, op, remote)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			return emit(res, func(w io.Writer) {
				if res.Updated {
					fmt.Fprintf(w, "%s %s: %s\n", op, res.Remote, green("updated"))
				} else {
					fmt.Fprintf(w, "%s %s: up to date\n", op, res.Remote)
				}
			})
		},
	}
}

func shortOID(oid string) string {
	if len(oid) > 7 {
		return oid[:7]
	}
	return oid
}
