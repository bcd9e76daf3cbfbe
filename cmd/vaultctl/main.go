// vaultctl manages a SecureKey vault from the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/panchalshubham0608/securekey/internal/config"
)

var version = "dev"

type rootFlags struct {
	config string
	email  string
	quick  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rf := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "vaultctl",
		Short: "Manage SecureKey vault entries",
		Long: `vaultctl signs in to a SecureKey vault and manages its entries.

Every command asks for the master password unless --quick is given and
this device is enrolled for quick unlock, in which case it asks for the
device PIN instead.`,
		Version:       version,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&rf.config, "config", "", "config file (default is the user config dir, then /etc/securekey)")
	pf.StringVarP(&rf.email, "email", "e", os.Getenv("SECUREKEY_EMAIL"), "account email")
	pf.BoolVarP(&rf.quick, "quick", "q", false, "unlock with the device PIN when enrolled")
	pf.String("store", config.StoreMemory, "vault store (memory or mongo)")
	pf.String("mongo.uri", "", "MongoDB connection URI")
	pf.String("device.path", "", "device-local key store file")
	pf.String("log.level", "info", "log level")

	cmd.AddCommand(
		newSignupCmd(rf),
		newAddCmd(rf),
		newListCmd(rf),
		newGetCmd(rf),
		newSetPassCmd(rf),
		newHistoryCmd(rf),
		newDeleteCmd(rf),
		newMigrateCmd(rf),
		newQuickUnlockCmd(rf),
		newConfigCmd(rf),
	)
	return cmd
}

func newConfigCmd(rf *rootFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect or create the configuration file"}

	var system, force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the current settings",
		Long:  "Writes the effective settings (defaults, environment and flags) to --config or the default location.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, "")
			if err != nil {
				return err
			}
			path := rf.config
			if path == "" {
				if path, err = config.Path(system); err != nil {
					return err
				}
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.WriteFile(&cfg, path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&system, "system", false, "write the machine-wide file")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, system := range []bool{false, true} {
				p, err := config.Path(system)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	cmd.AddCommand(initCmd, pathCmd)
	return cmd
}
