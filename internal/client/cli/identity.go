package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/hammerspace/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/hammerspace/internal/client/vault"
	"github.com/spf13/cobra"
)

func identityCommand(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage the local key pair used to unwrap shared folder keys",
	}

	var withRecovery bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a new identity",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *App, _ []string) error {
			v, err := a.vault.open()
			if err != nil {
				return err
			}

			if !withRecovery {
				_, rcpt, err := v.GenerateIdentity(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "recipient: %s\n", rcpt)
				return nil
			}

			_, rcpt, phrase, err := v.GenerateIdentityWithRecovery(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "recipient: %s\n", rcpt)
			fmt.Fprintf(a.out, "recovery phrase (write it down, it is shown once):\n%s\n", phrase)
			return nil
		}),
	}
	initCmd.Flags().BoolVar(&withRecovery, "recovery", true, "also print a recovery phrase")

	restoreCmd := &cobra.Command{
		Use:   "restore",
		Short: "Reset the vault passphrase using the recovery phrase",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *App, _ []string) error {
			phrase, err := GetSimpleText(a.reader, "Recovery phrase", a.out)
			if err != nil {
				return err
			}
			v, err := a.vault.open()
			if err != nil {
				return err
			}
			id, err := v.Recover(ctx, phrase)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "identity restored, recipient: %s\n", id.Recipient())
			return nil
		}),
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the public recipient",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *App, _ []string) error {
			rcpt, err := vault.New(metadata.NewSQLiteRepository(a.db, vaultNamespace), nil).Recipient(ctx)
			if errors.Is(err, vault.ErrNoIdentity) {
				return fmt.Errorf("%w: run 'hammer identity init' first", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "recipient: %s\n", rcpt)
			return nil
		}),
	}

	cmd.AddCommand(initCmd, restoreCmd, showCmd)
	return cmd
}
