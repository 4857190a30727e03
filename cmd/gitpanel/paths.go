package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type pathCall struct {
	ctx  context.Context
	id   string
	path string
}

// pathCommand builds a command that applies fn to each path argument.
func pathCommand(use, short string, fn func(pathCall) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <path>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := openRepo(ctx)
			if err != nil {
				return err
			}
			for _, p := range args {
				if err := fn(pathCall{ctx: ctx, id: id, path: p}); err != nil {
					return fmt.Errorf("%s %s: %w", use, p, err)
				}
			}
			return nil
		},
	}
}
