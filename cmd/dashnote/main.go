package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/common"
)

// defaultConfigFile is picked up from the working directory when no
// --config flag is given
const defaultConfigFile = "dashnote.toml"

var (
	configFiles []string
	verbose     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "dashnote",
		Short:         "Annotate financial dashboards from a chart image and its data",
		Version:       common.CurrentBuild().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", nil,
		"Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(annotateCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(featuresCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		// Global logger: the command's own logger may not exist yet
		common.GetLogger().Error().Err(err).Msg("dashnote failed")
		os.Exit(1)
	}
}

// loadConfig resolves config files, then env, then flags. One-shot
// commands log at warn level so stdout carries only the result.
func loadConfig(oneShot bool) (*common.Config, arbor.ILogger, error) {
	paths := configFiles
	if len(paths) == 0 {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			paths = []string{defaultConfigFile}
		}
	}

	config, err := common.LoadFromFiles(paths...)
	if err != nil {
		return nil, nil, err
	}

	if oneShot {
		config.Logging.Output = []string{"stdout"}
		config.Logging.Level = "warn"
	}
	if verbose {
		config.Logging.Level = "debug"
	}

	logger := common.InitLogger(config)
	logger.Debug().
		Strs("config_files", paths).
		Str("log_level", config.Logging.Level).
		Str("provider", string(config.LLM.DefaultProvider)).
		Msg("Configuration loaded")
	return config, logger, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dashnote %s\n", common.CurrentBuild())
		},
	}
}
