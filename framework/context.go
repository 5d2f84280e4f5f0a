package framework

import (
	"errors"
	"fmt"
	"runtime/debug"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"
)

type environment struct {
	results    Results
	testLogger TestLogger
	filter     Filter
}

// Context represents one check in a run. It implements the TestingT interfaces of testify's
// assert and require packages, so a *Context can be passed wherever those want a *testing.T.
type Context struct {
	env         *environment
	id          TestID
	debugLogger CapturingLogger
	failed      bool
	skipped     bool
	skipReason  string
	errors      []error
	deferred    []func()
}

func Run(
	filter Filter,
	testLogger TestLogger,
	action func(*Context),
) Results {
	if testLogger == nil {
		testLogger = nullTestLogger{}
	}
	env := &environment{
		filter:     filter,
		testLogger: testLogger,
	}
	c := &Context{env: env}
	c.run(action)
	return env.results
}

func (c *Context) run(action func(*Context)) {
	defer func() {
		for i := len(c.deferred) - 1; i >= 0; i-- {
			c.deferred[i]()
		}
		c.deferred = nil
	}()
	defer func() {
		if r := recover(); r != nil {
			if c.skipped {
				c.record()
				return
			}
			c.failed = true
			var addError error
			if _, ok := r.(*Context); ok {
				if len(c.errors) == 0 {
					addError = errors.New("check failed with no failure message")
				}
			} else {
				addError = fmt.Errorf("unexpected panic in check: %+v\n%s", r, string(debug.Stack()))
			}
			if addError != nil {
				c.errors = append(c.errors, addError)
				c.env.testLogger.TestError(c.id, addError)
			}
		}
		c.record()
	}()

	action(c)
}

func (c *Context) record() {
	if len(c.id.Path) == 0 && !c.failed {
		return // the root context is not a check of its own
	}
	result := TestResult{TestID: c.id, Errors: c.errors, Skipped: c.skipped, SkipReason: c.skipReason}
	c.env.results.Tests = append(c.env.results.Tests, result)
	switch {
	case c.failed:
		c.env.results.Failures = append(c.env.results.Failures, result)
	case c.skipped:
		c.env.results.Skipped = append(c.env.results.Skipped, result)
	}
}

func (c *Context) ID() TestID {
	return c.id
}

// Run runs a subcheck. It is skipped without running if it is excluded by the filter, or if
// the run has already been aborted.
func (c *Context) Run(name string, action func(*Context)) {
	c.runChild(name, true, action)
}

// RunRequired is like Run, but ignores the filter. It is for setup steps that every other
// check depends on.
func (c *Context) RunRequired(name string, action func(*Context)) {
	c.runChild(name, false, action)
}

func (c *Context) runChild(name string, filterable bool, action func(*Context)) {
	id := c.id.Plus(name)

	c.env.testLogger.TestStarted(id)
	if filterable && c.env.filter != nil && !c.env.filter(id) {
		c.env.testLogger.TestSkipped(id, "excluded by filter parameters")
		return
	}
	if c.env.results.Aborted != "" {
		reason := "run was aborted: " + c.env.results.Aborted
		c.env.results.Skipped = append(c.env.results.Skipped, TestResult{TestID: id, Skipped: true, SkipReason: reason})
		c.env.results.Tests = append(c.env.results.Tests, TestResult{TestID: id, Skipped: true, SkipReason: reason})
		c.env.testLogger.TestSkipped(id, reason)
		return
	}
	c1 := &Context{
		id:  id,
		env: c.env,
	}
	c1.run(action)
	if c1.skipped {
		c.env.testLogger.TestSkipped(id, c1.skipReason)
	} else {
		c.env.testLogger.TestFinished(id, c1.failed, c1.debugLogger.Output())
	}
}

func (c *Context) Errorf(format string, args ...interface{}) {
	c.failed = true
	err := fmt.Errorf(format, args...)
	c.errors = append(c.errors, err)
	c.env.testLogger.TestError(c.id, errors.New(reformatError(err)))
}

func (c *Context) FailNow() {
	panic(c)
}

// Failed reports whether this check has recorded a failure so far.
func (c *Context) Failed() bool {
	return c.failed
}

func (c *Context) Skip() {
	c.skipped = true
	panic(c)
}

func (c *Context) SkipWithReason(reason string) {
	c.skipReason = reason
	c.Skip()
}

// Abort fails this check and stops the whole run: every check started afterward is skipped.
func (c *Context) Abort(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	c.env.results.Aborted = message
	c.Errorf("%s", message)
	c.FailNow()
}

// Aborted returns true if any check has called Abort.
func (c *Context) Aborted() bool {
	return c.env.results.Aborted != ""
}

// Defer schedules a function to run when this check finishes, whether it passed or not.
// Deferred functions run in reverse order.
func (c *Context) Defer(fn func()) {
	c.deferred = append(c.deferred, fn)
}

func (c *Context) Debug(message string, args ...interface{}) {
	c.debugLogger.Printf(message, args...)
}

// Loggers returns levelled loggers whose output goes to this check's debug output.
func (c *Context) Loggers() ldlog.Loggers {
	return NewLoggers(&c.debugLogger, ldlog.Debug)
}
