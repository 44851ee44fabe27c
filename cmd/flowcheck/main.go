package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flowcheck/internal/config"
	"flowcheck/internal/logger"
	"flowcheck/internal/scenario"
	"flowcheck/internal/stub"
)

var (
	flagBaseURL   string
	flagWSURL     string
	flagHeadless  bool
	flagArtifacts string
	flagTimeout   time.Duration
	flagVerbose   bool

	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "flowcheck",
	Short: "Browser-driven verification flows for the team workspace product",
	Long: `flowcheck drives a real browser and the product's HTTP/WebSocket API
through scripted verification flows: register a throwaway team, spawn agents,
open terminals and previews, assert on what renders and what the socket
delivers, and capture screenshots along the way.

Each run writes a timestamped artifact directory with a JSON report, the
captured screenshots and frames, and the page's console and network logs.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		log, err = logger.New(flagArtifacts, flagVerbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in scenarios",
	Run: func(cmd *cobra.Command, args []string) {
		for _, f := range scenario.Builtins() {
			fmt.Printf("%-16s %s\n", f.Name, f.Description)
		}
	},
}

var stubAddr string

var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Serve the built-in stand-in for the product under test",
	Long: `Serves an in-memory implementation of the product's auth, agent,
preview and socket contract, plus a small app shell the browser flows can
drive. Useful for trying flows without a deployment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server := stub.New(log)
		log.Info("stub listening", zap.String("addr", stubAddr))
		return http.ListenAndServe(stubAddr, server.Handler())
	},
}

// buildConfig merges env config with whatever flags were set explicitly.
func buildConfig(cmd *cobra.Command) config.Config {
	cfg := config.FromEnv(config.NewEnvService())
	if cmd.Flags().Changed("base-url") {
		cfg.BaseURL = flagBaseURL
	}
	if cmd.Flags().Changed("ws-url") {
		cfg.WSURL = flagWSURL
	}
	if cmd.Flags().Changed("headless") {
		cfg.Headless = flagHeadless
	}
	if cmd.Flags().Changed("artifacts") {
		cfg.ArtifactDir = flagArtifacts
	}
	if cmd.Flags().Changed("timeout") {
		cfg.StepTimeout = flagTimeout
	}
	return cfg
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "http://localhost:3000", "base URL of the product under test")
	rootCmd.PersistentFlags().StringVar(&flagWSURL, "ws-url", "", "socket URL (default: derived from base URL)")
	rootCmd.PersistentFlags().BoolVar(&flagHeadless, "headless", true, "run the browser headless")
	rootCmd.PersistentFlags().StringVar(&flagArtifacts, "artifacts", "artifacts", "artifact output directory")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "default per-step timeout")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	stubCmd.Flags().StringVar(&stubAddr, "addr", ":3000", "listen address")

	rootCmd.AddCommand(runCmd, captureCmd, listCmd, stubCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
