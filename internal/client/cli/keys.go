package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func keysCommand(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect and drop cached folder keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "cached",
		Short: "List folders whose key is cached",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *App, _ []string) error {
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			for _, id := range a.resolver.CachedFolders() {
				fmt.Fprintln(a.out, id)
			}
			return nil
		}),
	}, &cobra.Command{
		Use:   "invalidate [folder-id]...",
		Short: "Forget cached keys, all of them when no folder is given",
		RunE: run(func(ctx context.Context, a *App, args []string) error {
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			if len(args) == 0 {
				a.resolver.InvalidateAll()
				return nil
			}
			for _, id := range args {
				a.resolver.ShareChanged(id)
			}
			return nil
		}),
	})
	return cmd
}
