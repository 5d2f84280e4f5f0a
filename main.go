package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/rodolfodpk/instagrano-realtime-tests/apiclient"
	"github.com/rodolfodpk/instagrano-realtime-tests/framework"
	"github.com/rodolfodpk/instagrano-realtime-tests/scenario"
)

const programName = "instagrano-realtime-tests"

// errChecksFailed means the run completed and its results have already been reported.
var errChecksFailed = errors.New("some checks failed")

func main() {
	if err := newRootCommand(os.Getenv).Execute(); err != nil {
		if !errors.Is(err, errChecksFailed) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

func newRootCommand(getenv func(string) string) *cobra.Command {
	var params commandParams
	cmd := &cobra.Command{
		Use:   programName,
		Short: "Verify real-time event delivery of an Instagrano backend",
		Long: `Registers simulated users, opens an event stream for each of them, performs
actions through the HTTP API and checks that every user receives the matching
events. Exits with a non-zero status if a check fails or setup is impossible.

Example:
  API_URL=http://localhost:8080 ` + programName + ` --users 3 --debug`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return params.resolve(cmd.Flags(), getenv)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, params)
		},
	}
	params.addFlags(cmd.Flags())
	cmd.AddCommand(newMockBackendCommand())
	return cmd
}

func runScenario(cmd *cobra.Command, params commandParams) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, params.commandLine(programName))
	fmt.Fprintln(out)

	client := apiclient.New(params.serviceURL)
	if err := client.AwaitService(ctx, params.serviceWaitTimeout); err != nil {
		return fmt.Errorf("backend is not available: %w", err)
	}

	framework.PrintFilterDescription(out, params.filters)
	fmt.Fprintln(out, "Running real-time scenario")

	cfg := params.scenarioConfig()
	cfg.StreamLoggers = ldlog.NewDisabledLoggers()
	if params.debugAll {
		streamLogger := framework.LoggerWithPrefix(log.New(out, "", log.LstdFlags), "[stream] ")
		cfg.StreamLoggers = framework.NewLoggers(streamLogger, ldlog.Debug)
	}
	testLogger := &ConsoleTestLogger{
		Out:                  out,
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}

	results := scenario.RunRealtimeScenario(ctx, client, cfg, params.filters.AsFilter, testLogger)

	fmt.Fprintln(out)
	framework.PrintResults(out, results)
	if !results.OK() {
		return errChecksFailed
	}
	return nil
}
