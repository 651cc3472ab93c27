package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
)

var (
	// Command-line flags
	configFiles []string // Multiple -config flags supported, later files override earlier ones
	serverPort  int
	serverHost  string
	verbose     bool

	// Global state, set by loadConfig before any command runs
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "modelfinder",
	Short:         "Find and locate the models a ComfyUI workflow is missing",
	Long:          `Analyzes ComfyUI workflow files for model references that are missing locally, searches download links and writes a dated report under the results folder.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       common.GetVersion(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times, later files override earlier ones)")
	rootCmd.PersistentFlags().IntVarP(&serverPort, "port", "p", 0, "Server port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&serverHost, "host", "", "Server host (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Also write log lines to the console")

	rootCmd.AddCommand(analyzeCmd, batchCmd, viewLastCmd, openResultsCmd, cleanupCmd, serveCmd, versionCmd)
}

func main() {
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig runs the startup sequence shared by every command:
// config (defaults -> files -> .env -> env) -> CLI overrides -> logger
func loadConfig(cmd *cobra.Command) error {
	if cmd.Name() == versionCmd.Name() {
		return nil
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("modelfinder.toml"); err == nil {
			configFiles = append(configFiles, "modelfinder.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	common.ApplyFlagOverrides(config, serverPort, serverHost)

	// The terminal view owns the console for one-shot commands
	if cmd.Name() != serveCmd.Name() && !verbose {
		config.Logging.Output = withoutConsole(config.Logging.Output)
	}

	logger = common.InitLogger(config)
	common.InstallCrashHandler(config.Logging.Dir)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("command", cmd.Name()).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Str("output_root", config.Output.Root).
		Msg("Configuration loaded")

	return nil
}

func withoutConsole(outputs []string) []string {
	kept := make([]string, 0, len(outputs))
	for _, output := range outputs {
		if output == "stdout" || output == "console" {
			continue
		}
		kept = append(kept, output)
	}
	return kept
}
