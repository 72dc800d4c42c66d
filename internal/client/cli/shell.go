package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/hammerspace/internal/common"
	"github.com/spf13/cobra"
)

func (a *App) status() string {
	if a.userID == "" {
		return ""
	}
	return fmt.Sprintf(" (%s)", a.userID)
}

func shellCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands interactively, keeping keys cached between them",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *App, _ []string) error {
			if err := a.requireSession(ctx); err != nil && !errors.Is(err, common.ErrNoSession) {
				return err
			}
			return runShell(ctx, a, NewRootCommand)
		}),
	}
}

func runShell(ctx context.Context, a *App, newRoot func() *cobra.Command) error {
	fmt.Fprintln(a.out, "hammer shell (type 'help' for commands, 'exit' to leave)")
	for {
		fmt.Fprintf(a.out, "hammer%s> ", a.status())

		line, err := a.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		fields := strings.Fields(line)

		switch {
		case len(fields) == 0:
		case fields[0] == "exit" || fields[0] == "quit":
			fmt.Fprintln(a.out, "Bye!")
			return nil
		case fields[0] == "shell":
			fmt.Fprintln(a.out, "already in a shell")
		default:
			cmd := newRoot()
			cmd.SetArgs(fields)
			cmd.SetOut(a.out)
			cmd.SetErr(a.out)
			if err := cmd.ExecuteContext(withApp(ctx, a)); err != nil {
				fmt.Fprintln(a.out, "error:", err)
			}
		}

		if errors.Is(err, io.EOF) {
			fmt.Fprintln(a.out)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
