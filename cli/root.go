// Package cli wires configuration, storage, queue and HTTP into the
// compass commands.
package cli

import (
	"compass/config"
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

// Execute runs the compass command tree.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "compass",
		Short:        "Canvas editor backend with cached, queued persistence",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.Server.LogLevel = a.logLevel
			}
			level, err := logrus.ParseLevel(cfg.Server.LogLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			logrus.SetFormatter(&logrus.TextFormatter{
				FullTimestamp: true,
			})
			a.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a TOML config file (default compass.toml if present)")
	root.PersistentFlags().StringVar(&a.logLevel, "loglevel", "", "The log level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newWorkerCmd(a))
	root.AddCommand(newCanvasCmd(a))
	root.AddCommand(newTokenCmd(a))
	return root
}
