package main

import (
	"fmt"
	"os"

	"github.com/pacs-databridge/app/config"
	"github.com/pacs-databridge/app/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli carries the persistent flags shared by every subcommand.
type cli struct {
	configPath string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:           "databridge",
		Short:         "PACS DataBridge address tools",
		Long:          `Normalize, parse and match addresses against a parcel roll, and ingest permit and personal property files`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default config/databridge.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log to stderr")

	rootCmd.AddCommand(c.createNormalizeCmd())
	rootCmd.AddCommand(c.createParseCmd())
	rootCmd.AddCommand(c.createMatchCmd())
	rootCmd.AddCommand(c.createPermitsCmd())
	rootCmd.AddCommand(c.createPropertyCmd())
	rootCmd.AddCommand(c.createIndexParcelsCmd())
	return rootCmd
}

func (c *cli) logger() *zap.Logger {
	if !c.verbose {
		return zap.NewNop()
	}
	logger, err := logging.New("development")
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func (c *cli) loadConfig() (*config.Config, error) {
	return config.Load(c.configPath)
}
