package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/panchalshubham0608/securekey/internal/migration"
)

func newMigrateCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Re-encrypt entries written by the legacy client",
		Args:  cobra.NoArgs,
		RunE: withVault(rf, func(cmd *cobra.Command, e *env, _ []string) error {
			pending, err := e.app.Migration.Pending(cmd.Context(), e.id.UID)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to migrate")
				return nil
			}
			secret, err := readSecret(cmd, "Legacy password: ")
			if err != nil {
				return err
			}
			rep, err := e.app.Migrate(cmd.Context(), e.sess, secret, func(done, total int) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\rmigrated %d/%d", done, total)
			})
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), migrationSummary(rep))
			return nil
		}),
	}
}

// migrationSummary reports a finished run. Migrated already includes
// resumed entries.
func migrationSummary(rep migration.Report) string {
	return fmt.Sprintf("migrated %d of %d entries (%d resumed)", rep.Migrated, rep.Total, rep.Resumed)
}

func newQuickUnlockCmd(rf *rootFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "quick-unlock", Short: "Manage device quick unlock"}

	enable := &cobra.Command{
		Use:   "enable",
		Short: "Enroll this device for the signed-in account",
		Args:  cobra.NoArgs,
		RunE: withVault(rf, func(cmd *cobra.Command, e *env, _ []string) error {
			if err := e.app.EnableQuickUnlock(cmd.Context(), e.id, e.sess); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "quick unlock enabled")
			return nil
		}),
	}

	disable := &cobra.Command{
		Use:   "disable",
		Short: "Remove this device's enrollment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, rf)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			uid, _ := a.Quick.EnrolledUID(cmd.Context())
			if err := a.DisableQuickUnlock(cmd.Context(), uid); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "quick unlock disabled")
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether this device is enrolled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, rf)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "supported:", a.Quick.IsSupported())
			fmt.Fprintln(out, "state:    ", a.Quick.State())
			if uid, ok := a.Quick.EnrolledUID(cmd.Context()); ok {
				if id, err := a.Users.Lookup(cmd.Context(), uid); err == nil {
					fmt.Fprintln(out, "account:  ", id.Email)
				} else {
					fmt.Fprintln(out, "account:  ", uid)
				}
			}
			return nil
		},
	}

	cmd.AddCommand(enable, disable, status)
	return cmd
}
