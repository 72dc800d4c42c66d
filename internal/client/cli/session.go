package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/hammerspace/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/hammerspace/internal/client/vault"
	"github.com/dmitrijs2005/hammerspace/internal/common"
	"github.com/spf13/cobra"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

func registerCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "register [user]",
		Short: "Create an account and publish this device's public recipient",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(ctx context.Context, a *App, args []string) error {
			var userID string
			if len(args) == 1 {
				userID = args[0]
			} else {
				var err error
				if userID, err = getSimpleText(a.reader, "User", a.out); err != nil {
					return err
				}
			}
			email, err := getSimpleText(a.reader, "Email", a.out)
			if err != nil {
				return err
			}
			password, err := getPassword("Password", a.out)
			if err != nil {
				return err
			}
			defer common.WipeByteArray(password)

			rcpt, err := ensureIdentity(ctx, a)
			if err != nil {
				return err
			}

			sess, err := a.session.Register(ctx, userID, email, string(password), rcpt)
			if err != nil {
				return err
			}
			a.bind(sess.UserID)
			fmt.Fprintf(a.out, "registered as %s\n", sess.UserID)
			return nil
		}),
	}
}

// ensureIdentity returns the stored recipient, generating an identity with a
// recovery phrase when there is none yet.
func ensureIdentity(ctx context.Context, a *App) (vault.Recipient, error) {
	rcpt, err := vault.New(metadata.NewSQLiteRepository(a.db, vaultNamespace), nil).Recipient(ctx)
	switch {
	case err == nil:
		fmt.Fprintf(a.out, "using existing identity, recipient: %s\n", rcpt)
		return rcpt, nil
	case !errors.Is(err, vault.ErrNoIdentity):
		return "", err
	}

	v, err := a.vault.open()
	if err != nil {
		return "", err
	}
	_, rcpt, phrase, err := v.GenerateIdentityWithRecovery(ctx)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(a.out, "recipient: %s\n", rcpt)
	fmt.Fprintf(a.out, "recovery phrase (write it down, it is shown once):\n%s\n", phrase)
	return rcpt, nil
}

func loginCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "login [user]",
		Short: "Log in and remember the session",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(ctx context.Context, a *App, args []string) error {
			var userID string
			if len(args) == 1 {
				userID = args[0]
			} else {
				var err error
				if userID, err = getSimpleText(a.reader, "User", a.out); err != nil {
					return err
				}
			}

			password, err := getPassword("Password", a.out)
			if err != nil {
				return err
			}
			defer common.WipeByteArray(password)

			sess, err := a.session.Login(ctx, userID, string(password))
			if err != nil {
				return err
			}
			a.bind(sess.UserID)
			fmt.Fprintf(a.out, "logged in as %s\n", sess.UserID)
			return nil
		}),
	}
}

func logoutCommand(run runner) *cobra.Command {
	var clearCache bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *App, _ []string) error {
			if _, _, err := a.session.Restore(ctx); err != nil {
				return err
			}
			err := a.session.Logout(ctx, clearCache)
			a.userID = ""
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, "logged out")
			return nil
		}),
	}
	cmd.Flags().BoolVar(&clearCache, "clear-cache", false, "also remove the cached tree and decrypted files")
	return cmd
}
