package cli

import (
	"context"

	"github.com/dmitrijs2005/hammerspace/internal/client/config"
	"github.com/spf13/cobra"
)

type appKey struct{}

func withApp(ctx context.Context, a *App) context.Context {
	return context.WithValue(ctx, appKey{}, a)
}

func appFrom(ctx context.Context) (*App, bool) {
	a, ok := ctx.Value(appKey{}).(*App)
	return a, ok
}

type runFunc func(ctx context.Context, a *App, args []string) error

type runner func(runFunc) func(*cobra.Command, []string) error

// NewRootCommand builds the hammer command tree.
func NewRootCommand() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "hammer",
		Short:         "Client-side encrypted file sync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&cfgPath, "config", "c", "", "path to config file")
	pf.String("server", "", "storage service endpoint")
	pf.String("transport", "", "remote transport: http or grpc")
	pf.String("db", "", "path to the local metadata database")
	pf.String("cache-dir", "", "directory for decrypted files")
	pf.String("log-level", "", "debug, info, warn or error")

	// run reuses the shell's App when there is one, so caches survive
	// between shell commands.
	var run runner = func(fn runFunc) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if a, ok := appFrom(ctx); ok {
				return fn(ctx, a, args)
			}

			cfg, err := config.LoadConfig(cfgPath, cmd.Flags())
			if err != nil {
				return err
			}
			a, err := NewApp(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			return fn(withApp(ctx, a), a, args)
		}
	}

	root.AddCommand(
		identityCommand(run),
		registerCommand(run),
		loginCommand(run),
		logoutCommand(run),
		syncCommand(run),
		lsCommand(run),
		openCommand(run),
		mkdirCommand(run),
		mvCommand(run),
		rmCommand(run),
		shareCommand(run),
		uploadCommand(run),
		keysCommand(run),
		shellCommand(run),
	)
	return root
}
