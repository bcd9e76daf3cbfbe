package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/panchalshubham0608/securekey/internal/platform"
	"github.com/panchalshubham0608/securekey/internal/vault"
)

const generatedAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789!@#$%^&*-_=+"

func generatePassword(n int) (string, error) {
	if n < 8 {
		return "", fmt.Errorf("generated passwords need at least 8 characters, got %d", n)
	}
	out := make([]byte, n)
	limit := big.NewInt(int64(len(generatedAlphabet)))
	for i := range out {
		k, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = generatedAlphabet[k.Int64()]
	}
	return string(out), nil
}

// itemPassword returns a generated password when n > 0 and prompts otherwise.
func itemPassword(cmd *cobra.Command, n int) (string, error) {
	if n > 0 {
		return generatePassword(n)
	}
	return readNewSecret(cmd, "entry password")
}

// withVault runs fn with an unlocked session and locks it afterwards.
func withVault(rf *rootFlags, fn func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := signIn(cmd, rf)
		if err != nil {
			return err
		}
		defer e.close(context.Background())
		return fn(cmd, e, args)
	}
}

func newSignupCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create an account and its vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, rf)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			email, err := emailOf(cmd, rf)
			if err != nil {
				return err
			}
			pw, err := readNewSecret(cmd, "master password")
			if err != nil {
				return err
			}
			id, sess, err := a.Register(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			a.Lock(sess)
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", id.Email, id.UID)
			return nil
		},
	}
}

func newAddCmd(rf *rootFlags) *cobra.Command {
	var gen int
	cmd := &cobra.Command{
		Use:   "add ACCOUNT USERNAME",
		Short: "Store a new entry",
		Args:  cobra.ExactArgs(2),
		RunE: withVault(rf, func(cmd *cobra.Command, e *env, args []string) error {
			pw, err := itemPassword(cmd, gen)
			if err != nil {
				return err
			}
			id, err := e.app.Items.Add(cmd.Context(), e.sess, vault.NewItem{Account: args[0], Username: args[1], Password: pw})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&gen, "generate", "g", 0, "generate a password of this length")
	return cmd
}

func newListCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List entries without their passwords",
		Args:  cobra.NoArgs,
		RunE: withVault(rf, func(cmd *cobra.Command, e *env, _ []string) error {
			items, err := e.app.Items.List(cmd.Context(), e.sess)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tACCOUNT\tUSERNAME\tUPDATED")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.ID, it.Account, it.Username, it.UpdatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		}),
	}
}

func newGetCmd(rf *rootFlags) *cobra.Command {
	var copyIt bool
	cmd := &cobra.Command{
		Use:   "get ACCOUNT USERNAME",
		Short: "Print or copy an entry's password",
		Args:  cobra.ExactArgs(2),
		RunE: withVault(rf, func(cmd *cobra.Command, e *env, args []string) error {
			pw, err := e.app.Items.Password(cmd.Context(), e.sess, args[0], args[1])
			if err != nil {
				return err
			}
			if !copyIt {
				fmt.Fprintln(cmd.OutOrStdout(), pw)
				return nil
			}
			if !platform.ClipboardSupported() {
				return fmt.Errorf("no clipboard available on this system")
			}
			ttl := e.app.Policy().ClipboardTimeout
			fmt.Fprintf(cmd.ErrOrStderr(), "copied; clearing in %s\n", ttl)
			return platform.NewClipboard().Set(cmd.Context(), pw, ttl)
		}),
	}
	cmd.Flags().BoolVarP(&copyIt, "copy", "c", false, "copy to the clipboard instead of printing")
	return cmd
}

func newSetPassCmd(rf *rootFlags) *cobra.Command {
	var gen int
	cmd := &cobra.Command{
		Use:   "setpass ID",
		Short: "Replace an entry's password, keeping the old one in history",
		Args:  cobra.ExactArgs(1),
		RunE: withVault(rf, func(cmd *cobra.Command, e *env, args []string) error {
			pw, err := itemPassword(cmd, gen)
			if err != nil {
				return err
			}
			return e.app.Items.UpdatePassword(cmd.Context(), e.sess, args[0], pw)
		}),
	}
	cmd.Flags().IntVarP(&gen, "generate", "g", 0, "generate a password of this length")
	return cmd
}

func newHistoryCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history ID",
		Short: "Print an entry's earlier passwords, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: withVault(rf, func(cmd *cobra.Command, e *env, args []string) error {
			hist, err := e.app.Items.History(cmd.Context(), e.sess, args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, h := range hist {
				fmt.Fprintf(tw, "%s\t%s\n", h.UpdatedAt.Local().Format(time.DateTime), h.Password)
			}
			return tw.Flush()
		}),
	}
}

func newDeleteCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Remove an entry",
		Args:  cobra.ExactArgs(1),
		RunE: withVault(rf, func(cmd *cobra.Command, e *env, args []string) error {
			return e.app.Items.Delete(cmd.Context(), e.sess, args[0])
		}),
	}
}
