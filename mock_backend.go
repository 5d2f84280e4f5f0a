package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/rodolfodpk/instagrano-realtime-tests/framework"
	"github.com/rodolfodpk/instagrano-realtime-tests/mockbackend"
	"github.com/rodolfodpk/instagrano-realtime-tests/servicedef"
)

type mockBackendParams struct {
	addr      string
	secret    string
	heartbeat time.Duration
	drop      []string
	duplicate []string
	faults    mockbackend.Faults
	verbose   bool
}

func newMockBackendCommand() *cobra.Command {
	var params mockBackendParams
	cmd := &cobra.Command{
		Use:   "mock-backend",
		Short: "Serve an in-memory backend with the same API and event stream",
		Long: `Serves an in-memory imitation of the backend's HTTP API and event stream, for
trying out the harness without a real deployment. Fault flags make it misbehave
in ways the harness should detect.

Example:
  ` + programName + ` mock-backend --addr :8080 --duplicate post_liked`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMockBackend(cmd, params)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&params.addr, "addr", "localhost:8080", "address to listen on")
	fs.StringVar(&params.secret, "secret", "", "secret for signing tokens (default: random)")
	fs.DurationVar(&params.heartbeat, "heartbeat", mockbackend.DefaultHeartbeatInterval,
		"interval between heartbeat events")
	fs.BoolVar(&params.verbose, "verbose", false, "log every request and event")
	fs.BoolVar(&params.faults.FilterSelf, "filter-self", false, "withhold events from the user who caused them")
	fs.StringSliceVar(&params.drop, "drop", nil, "event types never to deliver")
	fs.StringSliceVar(&params.duplicate, "duplicate", nil, "event types to deliver twice")
	fs.DurationVar(&params.faults.Delay, "delay", 0, "delay before delivering each event")
	fs.DurationVar(&params.faults.DuplicateDelay, "duplicate-delay", 0, "delay before the second copy of a duplicated event")
	fs.BoolVar(&params.faults.WrongLikesCount, "wrong-likes-count", false,
		"report a wrong likes_count in post_liked events")
	fs.BoolVar(&params.faults.RejectStream, "reject-stream", false, "refuse every event stream with 503")
	fs.BoolVar(&params.faults.RejectLogin, "reject-login", false, "refuse every login with 401")
	return cmd
}

func runMockBackend(cmd *cobra.Command, params mockBackendParams) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	minLevel := ldlog.Info
	if params.verbose {
		minLevel = ldlog.Debug
	}
	faults := params.faults
	faults.Drop = eventTypes(params.drop)
	faults.Duplicate = eventTypes(params.duplicate)

	backend := mockbackend.New(mockbackend.Config{
		Secret:            params.secret,
		HeartbeatInterval: params.heartbeat,
		Faults:            faults,
		Loggers:           framework.NewLoggers(log.New(cmd.ErrOrStderr(), "", log.LstdFlags), minLevel),
	})
	return backend.ListenAndServe(ctx, params.addr)
}

func eventTypes(names []string) []servicedef.EventType {
	var ret []servicedef.EventType
	for _, n := range names {
		ret = append(ret, servicedef.EventType(n))
	}
	return ret
}
