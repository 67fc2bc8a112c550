// Package cli wires the command surface: ask, chat, load, clear-cache and
// clear-memory. Flags map directly onto pipeline options; the admin commands
// call the stores' clear operations and bypass the query pipeline.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"docqa/internal/config"
)

var (
	cfgPath string
	dataDir string
	verbose bool

	cfg *config.AppConfig
	log *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Question answering over an indexed document",
	Long: `docqa answers natural-language questions over a pre-indexed document by
retrieving semantically relevant passages and feeding them to a language
model, with durable answer caching and multi-turn conversation memory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		log, err = newLogger(verbose)
		if err != nil {
			return err
		}
		if cfgPath != "" {
			cfg, err = config.Load(cfgPath)
		} else {
			cfg, _, err = config.LoadDefault()
		}
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory for the cache and memory stores")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// resolveDataDir applies flag > config > default precedence.
func resolveDataDir() (string, error) {
	if dataDir != "" {
		return dataDir, nil
	}
	if cfg.DataDir != "" {
		return cfg.DataDir, nil
	}
	return config.DefaultDataDir()
}
