// Package main provides the localchat CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"localchat/cmd/localchat/chat"
	"localchat/internal/config"
	"localchat/internal/logging"
	"localchat/internal/store"
)

var (
	// Global flags
	dataDir      string
	modelSource  string
	engineBinary string
	debug        bool

	cfg config.Config
)

// rootCmd launches the interactive chat interface.
var rootCmd = &cobra.Command{
	Use:   "localchat",
	Short: "localchat - offline chat with a local language model",
	Long: `localchat is a terminal chat interface backed by a language model
running entirely on this machine. The model artifact is resolved on first
start and cached; after that no network access is needed.

Run without arguments to start chatting.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(dataDir)
		if err != nil {
			return err
		}
		if modelSource != "" {
			cfg.Model.Source = modelSource
		}
		if engineBinary != "" {
			cfg.EngineBinary = engineBinary
		}
		if debug {
			cfg.Logging.Debug = true
		}
		// The TUI owns the terminal, so logs go to files.
		return logging.Initialize(cfg.LogsDir(), cfg.Logging.Debug, cfg.Logging.Level)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return chat.Run(cfg)
	},
}

// resetCmd wipes all conversations.
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all conversations and messages",
	Long: `Deletes every conversation and its messages from the local database.
Downloaded model artifacts are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(cfg.DatabasePath())
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.ClearAll(); err != nil {
			return err
		}
		fmt.Println("All conversations deleted.")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.localchat)")
	rootCmd.PersistentFlags().StringVar(&modelSource, "model", "", "model artifact URL or file path")
	rootCmd.PersistentFlags().StringVar(&engineBinary, "engine-binary", "", "inference server executable (default llama-server)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	rootCmd.AddCommand(resetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
