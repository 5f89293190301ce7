package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/KaramelBytes/dataloom-cli/internal/agent"
	cfgpkg "github.com/KaramelBytes/dataloom-cli/internal/config"
	"github.com/KaramelBytes/dataloom-cli/internal/observability"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Global flags
	cfgFile      string
	debug        bool
	flagAPIKey   string
	flagProvider string
	flagModel    string

	// Loaded configuration and the logger built from it
	cfg    *cfgpkg.Config
	logger *slog.Logger
)

// newSession builds the agent behind one conversation. Tests replace it to
// avoid real model calls.
var newSession = func() (*agent.Agent, error) {
	return agent.FromConfig(cfg, logger)
}

var rootCmd = &cobra.Command{
	Use:   "dataloom",
	Short: "DataLoom: ask questions about a CSV in plain language",
	Long: `DataLoom loads a CSV (or a ZIP holding one), summarizes its schema and
answers natural-language questions by having a language model write a short
analysis script that runs in a sandbox against your data.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loadConfig(cmd.Root().PersistentFlags(), cmd.Name() == "serve")
		// config subcommands must still run against a broken file so it can be fixed
		if cmd.Parent() == configCmd || cmd == versionCmd {
			return nil
		}
		return cfg.Validate()
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.dataloom/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "model API key (overrides config and environment)")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "model provider: gemini|openrouter|ollama (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "model name (overrides config)")
}

// loadConfig resolves the configuration and logger. Interactive commands log
// at warn unless --debug is set or the file asks for something else.
func loadConfig(f *pflag.FlagSet, server bool) {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: fall back to defaults so config commands can still repair things
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		c = cfgpkg.Default()
	}
	cfg = c

	if f.Changed("api-key") {
		cfg.APIKey = flagAPIKey
	}
	if f.Changed("provider") {
		cfg.LLM.Provider = flagProvider
	}
	if f.Changed("model") {
		cfg.LLM.ModelName = flagModel
	}
	switch {
	case debug:
		cfg.Log.Level = "debug"
	case !server && cfg.Log.Level == "info":
		cfg.Log.Level = "warn"
	}
	logger = observability.NewLogger(*cfg, os.Stderr)
	slog.SetDefault(logger)
}
