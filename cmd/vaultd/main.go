// vaultd serves the vault over HTTP for local clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/panchalshubham0608/securekey/internal/app"
	"github.com/panchalshubham0608/securekey/internal/config"
	"github.com/panchalshubham0608/securekey/internal/logging"
	"github.com/panchalshubham0608/securekey/internal/platform"
	"github.com/panchalshubham0608/securekey/internal/server"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:          "vaultd",
		Short:        "SecureKey vault daemon",
		Version:      version,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the user config dir, then /etc/securekey)")
	cmd.AddCommand(newServeCmd(&cfgFile))
	return cmd
}

func newServeCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, *cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := logging.New(cfg.Log, os.Stderr)
			if err := platform.DisableCoreDumps(); err != nil {
				logger.Warn("could not disable core dumps", "err", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, app.Options{Logger: logger})
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := a.Close(closeCtx); err != nil {
					logger.Error("close", "err", err)
				}
			}()

			srv, err := server.New(a, server.Options{Logger: logger})
			if err != nil {
				return err
			}
			return srv.Run(ctx, cfg.Server.Addr)
		},
	}
	f := cmd.Flags()
	f.String("server.addr", config.Default().Server.Addr, "listen address")
	f.String("store", config.StoreMemory, "vault store (memory or mongo)")
	f.String("mongo.uri", "", "MongoDB connection URI")
	f.String("device.path", "", "device-local key store file")
	f.String("log.level", "info", "log level")
	f.String("log.format", "text", "log format (text, logfmt or json)")
	return cmd
}
