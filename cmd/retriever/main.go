package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retriever/internal/config"
	logpkg "github.com/kailas-cloud/retriever/internal/logger"
	"github.com/kailas-cloud/retriever/internal/version"
)

type rootFlags struct {
	env        string
	configPath string
}

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "retriever",
		Short:         "Document retrieval engine for the facility assistant",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.env, "env", config.GetEnv(), "environment name, selects config/<env>.yaml")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "explicit config file path")

	root.AddCommand(
		newServeCmd(flags),
		newRebuildCmd(flags),
		newQueryCmd(flags),
		newStatusCmd(flags),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration and builds the logger shared by every command.
func setup(flags *rootFlags) (config.Config, *zap.Logger, error) {
	var (
		cfg config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.Load(flags.env)
	}
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(flags.env, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
