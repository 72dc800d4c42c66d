package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dmitrijs2005/hammerspace/internal/client/models"
	"github.com/dmitrijs2005/hammerspace/internal/common"
	"github.com/spf13/cobra"
)

func syncCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replace the local tree with the server's",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *App, _ []string) error {
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			if err := a.syncer.Sync(ctx, a.userID); err != nil {
				return err
			}
			all, err := a.store.ListAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "synced %d items\n", len(all))
			return nil
		}),
	}
}

func printItems(a *App, list []models.Item) {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSIZE\tFLAGS\tNAME")
	for _, it := range list {
		kind, size := "dir", "-"
		if it.IsFile() {
			kind, size = it.MimeType(), fmt.Sprint(it.SizeBytes())
		}
		flags := ""
		if it.Shared {
			flags += "s"
		}
		if it.OwnerID != a.userID {
			flags += "f"
		}
		if it.LocalPlaintextURI != "" {
			flags += "c"
		}
		if flags == "" {
			flags = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", it.ID, kind, size, flags, it.Name)
	}
	_ = tw.Flush()
}

func lsCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [folder-id]",
		Short: "List a folder of the local tree (s=shared, f=foreign, c=cached)",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(ctx context.Context, a *App, args []string) error {
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			parent := models.RootID
			if len(args) == 1 {
				parent = args[0]
			}
			list, err := a.items.List(ctx, parent)
			if err != nil {
				return err
			}
			printItems(a, list)
			return nil
		}),
	}
}

func openCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "open <file-id>",
		Short: "Decrypt a file into the cache and print its path",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *App, args []string) error {
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			it, err := a.items.Get(ctx, args[0])
			if err != nil {
				return err
			}
			path, err := a.mat.Materialize(ctx, it)
			if err != nil {
				if common.Retriable(err) {
					return fmt.Errorf("%w (try again later)", err)
				}
				return err
			}
			fmt.Fprintf(a.out, "%s\t%s\n", path, models.ViewerFor(it.MimeType()))
			return nil
		}),
	}
}

func mkdirCommand(run runner) *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *App, args []string) error {
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			folder, err := a.items.CreateFolder(ctx, parent, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, folder.ID)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&parent, "parent", "p", models.RootID, "parent folder id")
	return cmd
}

func mvCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <id> <new-name>",
		Short: "Rename an item",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(ctx context.Context, a *App, args []string) error {
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			return a.items.Rename(ctx, args[0], args[1])
		}),
	}
}

func rmCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove an item and everything below it",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *App, args []string) error {
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			return a.items.Remove(ctx, args[0])
		}),
	}
}

func shareCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "share <folder-id> <user>...",
		Short: "Share a folder with other users",
		Args:  cobra.MinimumNArgs(2),
		RunE: run(func(ctx context.Context, a *App, args []string) error {
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			if err := a.items.ShareFolder(ctx, args[0], args[1:]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "shared %s with %d users\n", args[0], len(args)-1)
			return nil
		}),
	}
}

func uploadCommand(run runner) *cobra.Command {
	var parent, mimeType, name string
	cmd := &cobra.Command{
		Use:   "upload <local-file>",
		Short: "Encrypt and upload a local file",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *App, args []string) error {
			if err := a.requireSession(ctx); err != nil {
				return err
			}

			fi, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			if fi.Size() > a.config.Upload.MaxBytes {
				return fmt.Errorf("%w: %s is %d bytes, limit is %d", common.ErrContentTooLarge, args[0], fi.Size(), a.config.Upload.MaxBytes)
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			defer common.WipeByteArray(content)

			if name == "" {
				name = filepath.Base(args[0])
			}
			it, err := a.items.Upload(ctx, parent, name, mimeType, content)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, it.ID)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&parent, "parent", "p", models.RootID, "destination folder id")
	cmd.Flags().StringVar(&mimeType, "mime", "", "MIME type (detected when empty)")
	cmd.Flags().StringVar(&name, "name", "", "remote name (defaults to the file name)")
	return cmd
}
