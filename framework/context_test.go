package framework

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loggedEvent struct {
	kind   string
	id     string
	detail string
}

type recordingTestLogger struct {
	events []loggedEvent
	debug  map[string]CapturedOutput
}

func (r *recordingTestLogger) TestStarted(id TestID) {
	r.events = append(r.events, loggedEvent{kind: "started", id: id.String()})
}

func (r *recordingTestLogger) TestError(id TestID, err error) {
	r.events = append(r.events, loggedEvent{kind: "error", id: id.String(), detail: err.Error()})
}

func (r *recordingTestLogger) TestFinished(id TestID, failed bool, debugOutput CapturedOutput) {
	kind := "passed"
	if failed {
		kind = "failed"
	}
	if r.debug == nil {
		r.debug = make(map[string]CapturedOutput)
	}
	r.debug[id.String()] = debugOutput
	r.events = append(r.events, loggedEvent{kind: kind, id: id.String()})
}

func (r *recordingTestLogger) TestSkipped(id TestID, reason string) {
	r.events = append(r.events, loggedEvent{kind: "skipped", id: id.String(), detail: reason})
}

func resultIDs(results []TestResult) []string {
	ret := []string{}
	for _, r := range results {
		ret = append(ret, r.TestID.String())
	}
	return ret
}

func TestPassingAndFailingChecks(t *testing.T) {
	logger := &recordingTestLogger{}
	results := Run(nil, logger, func(c *Context) {
		c.Run("a", func(c *Context) {
			c.Run("b", func(c *Context) {})
		})
		c.Run("c", func(c *Context) {
			assert.Equal(c, 1, 2)
			c.Debug("still running")
		})
		c.Run("d", func(c *Context) {
			require.True(c, false, "stopped here")
			c.Debug("not reached")
		})
	})

	assert.Equal(t, []string{"a/b", "a", "c", "d"}, resultIDs(results.Tests))
	assert.Equal(t, []string{"c", "d"}, resultIDs(results.Failures))
	assert.False(t, results.OK())
	assert.Equal(t, 2, results.Passed())

	require.Len(t, results.Failures[1].Errors, 1)
	assert.Contains(t, results.Failures[1].Errors[0].Error(), "stopped here")

	require.Len(t, logger.debug["c"], 1)
	assert.Equal(t, "still running", logger.debug["c"][0].Message)
	assert.Len(t, logger.debug["d"], 0)
	assert.Equal(t, loggedEvent{kind: "started", id: "a"}, logger.events[0])
	assert.Equal(t, loggedEvent{kind: "started", id: "a/b"}, logger.events[1])
}

func TestErrorfKeepsWrappedError(t *testing.T) {
	sentinel := errors.New("timed out")
	results := Run(nil, nil, func(c *Context) {
		c.Run("a", func(c *Context) { c.Errorf("%w", sentinel) })
	})
	require.Len(t, results.Failures, 1)
	require.Len(t, results.Failures[0].Errors, 1)
	assert.ErrorIs(t, results.Failures[0].Errors[0], sentinel)
}

func TestPanicInCheckIsAFailure(t *testing.T) {
	results := Run(nil, nil, func(c *Context) {
		c.Run("a", func(c *Context) {
			var m map[string]int
			m["x"] = 1
		})
		c.Run("b", func(c *Context) {})
	})

	require.Equal(t, []string{"a"}, resultIDs(results.Failures))
	assert.Contains(t, results.Failures[0].Errors[0].Error(), "unexpected panic in check")
	assert.Equal(t, 1, results.Passed())
}

func TestFailNowWithoutMessage(t *testing.T) {
	results := Run(nil, nil, func(c *Context) {
		c.Run("a", func(c *Context) { c.FailNow() })
	})
	require.Len(t, results.Failures, 1)
	assert.Equal(t, "check failed with no failure message", results.Failures[0].Errors[0].Error())
}

func TestSkipWithReason(t *testing.T) {
	logger := &recordingTestLogger{}
	results := Run(nil, logger, func(c *Context) {
		c.Run("a", func(c *Context) {
			c.SkipWithReason("not applicable")
			c.Errorf("not reached")
		})
	})

	assert.True(t, results.OK())
	require.Equal(t, []string{"a"}, resultIDs(results.Skipped))
	assert.Equal(t, "not applicable", results.Skipped[0].SkipReason)
	assert.Contains(t, logger.events, loggedEvent{kind: "skipped", id: "a", detail: "not applicable"})
}

func TestAbortSkipsEverythingAfterward(t *testing.T) {
	var ran []string
	results := Run(nil, nil, func(c *Context) {
		c.RunRequired("setup", func(c *Context) {
			ran = append(ran, "setup")
			c.Abort("could not log in: %s", errors.New("HTTP 401"))
			ran = append(ran, "after abort")
		})
		c.Run("check", func(c *Context) { ran = append(ran, "check") })
		c.RunRequired("teardown", func(c *Context) { ran = append(ran, "teardown") })
	})

	assert.Equal(t, []string{"setup"}, ran)
	assert.Equal(t, "could not log in: HTTP 401", results.Aborted)
	assert.False(t, results.OK())
	assert.Equal(t, []string{"setup"}, resultIDs(results.Failures))
	assert.Equal(t, []string{"check", "teardown"}, resultIDs(results.Skipped))
	for _, r := range results.Skipped {
		assert.Equal(t, "run was aborted: could not log in: HTTP 401", r.SkipReason)
	}
}

func TestAbortedIsVisibleToLaterCode(t *testing.T) {
	Run(nil, nil, func(c *Context) {
		assert.False(t, c.Aborted())
		c.Run("a", func(c *Context) { c.Abort("stop") })
		assert.True(t, c.Aborted())
	})
}

func TestFilterAppliesOnlyToOptionalChecks(t *testing.T) {
	var ran []string
	filter := func(id TestID) bool { return !strings.HasPrefix(id.String(), "x") }
	logger := &recordingTestLogger{}
	results := Run(filter, logger, func(c *Context) {
		c.Run("x1", func(c *Context) { ran = append(ran, "x1") })
		c.RunRequired("x2", func(c *Context) { ran = append(ran, "x2") })
		c.Run("y", func(c *Context) { ran = append(ran, "y") })
	})

	assert.Equal(t, []string{"x2", "y"}, ran)
	assert.Equal(t, []string{"x2", "y"}, resultIDs(results.Tests))
	assert.Len(t, results.Skipped, 0)
	assert.Contains(t, logger.events, loggedEvent{kind: "skipped", id: "x1", detail: "excluded by filter parameters"})
}

func TestDeferredFunctionsRunInReverseOrder(t *testing.T) {
	var calls []string
	Run(nil, nil, func(c *Context) {
		c.Defer(func() { calls = append(calls, "root") })
		c.Run("a", func(c *Context) {
			c.Defer(func() { calls = append(calls, "a1") })
			c.Defer(func() { calls = append(calls, "a2") })
			c.FailNow()
		})
		calls = append(calls, "after a")
	})
	assert.Equal(t, []string{"a2", "a1", "after a", "root"}, calls)
}

func TestLoggersWriteToDebugOutput(t *testing.T) {
	logger := &recordingTestLogger{}
	Run(nil, logger, func(c *Context) {
		c.Run("a", func(c *Context) {
			c.Loggers().Infof("connected to %s", "stream")
			c.Loggers().Debug("details")
		})
	})
	output := logger.debug["a"]
	require.Len(t, output, 2)
	assert.Contains(t, output[0].Message, "INFO")
	assert.Contains(t, output[0].Message, "connected to stream")
	assert.Contains(t, output[1].Message, "DEBUG")
	assert.Contains(t, output[1].Message, "details")
}
