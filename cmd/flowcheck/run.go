package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flowcheck/internal/flow"
	"flowcheck/internal/scenario"
	"flowcheck/internal/stub"
)

var (
	flagScenarioFile string
	flagUseStub      bool
)

var runCmd = &cobra.Command{
	Use:   "run [scenario]",
	Short: "Run a verification scenario",
	Long: `Runs a built-in scenario by name, or a YAML scenario via
--scenario-file. With --stub the run targets an in-process stand-in instead
of a live deployment.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScenario(cmd, args)
	},
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run the demo capture scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScenario(cmd, []string{"capture"})
	},
}

func runScenario(cmd *cobra.Command, args []string) error {
	var f flow.Flow
	switch {
	case flagScenarioFile != "":
		loaded, err := scenario.Load(flagScenarioFile)
		if err != nil {
			return err
		}
		f = loaded
	case len(args) == 1:
		found, ok := scenario.Find(args[0])
		if !ok {
			return fmt.Errorf("unknown scenario %q (see 'flowcheck list')", args[0])
		}
		f = found
	default:
		return fmt.Errorf("pass a scenario name or --scenario-file")
	}

	cfg := buildConfig(cmd)

	if flagUseStub {
		baseURL, shutdown, err := startEmbeddedStub()
		if err != nil {
			return err
		}
		defer shutdown()
		cfg.BaseURL = baseURL
		cfg.WSURL = ""
		log.Info("running against embedded stub", zap.String("base_url", baseURL))
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rep, err := flow.NewRunner(cfg, log).Run(ctx, f)
	if err != nil {
		return err
	}

	flow.PrintSummary(os.Stdout, rep)
	if !rep.Passed {
		return fmt.Errorf("scenario %q failed", f.Name)
	}
	return nil
}

// startEmbeddedStub serves the stub on a random local port.
func startEmbeddedStub() (string, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("stub listen: %w", err)
	}
	server := &http.Server{Handler: stub.New(log).Handler()}
	go func() {
		_ = server.Serve(ln)
	}()
	shutdown := func() { _ = server.Close() }
	return "http://" + ln.Addr().String(), shutdown, nil
}

func init() {
	runCmd.Flags().StringVar(&flagScenarioFile, "scenario-file", "", "YAML scenario file")
	runCmd.Flags().BoolVar(&flagUseStub, "stub", false, "run against the embedded stub")
	captureCmd.Flags().BoolVar(&flagUseStub, "stub", false, "run against the embedded stub")
}
