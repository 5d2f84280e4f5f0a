package correlate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/rodolfodpk/instagrano-realtime-tests/eventstream"
	"github.com/rodolfodpk/instagrano-realtime-tests/servicedef"
)

// DefaultWindow is how long to wait for an event after the action that should cause it.
const DefaultWindow = time.Second * 2

var (
	// ErrTimedOut means no event of the expected type arrived within the window.
	ErrTimedOut = errors.New("expected event did not arrive in time")

	// ErrMismatch means events of the expected type arrived, but none had the expected content.
	ErrMismatch = errors.New("events of the expected type arrived but none matched")
)

type Mode int

const (
	// ModeAwait waits for each subject until its event arrives or the window elapses.
	ModeAwait Mode = iota

	// ModeFixedSettle always waits for the whole window and then looks at what has arrived.
	ModeFixedSettle
)

func (m Mode) String() string {
	if m == ModeFixedSettle {
		return "fixed settle"
	}
	return "await"
}

// Subscription is the view of a connection that the correlator needs.
// *eventstream.Connection implements it.
type Subscription interface {
	Owner() string
	State() eventstream.State
	Err() error
	Events() []eventstream.Record
	Await(ctx context.Context, match func(eventstream.Record) bool) (eventstream.Record, error)
}

// Claim is an expectation that an action causes an event on each of the subjects.
type Claim struct {
	// Action describes what was done, for messages.
	Action string

	EventType servicedef.EventType

	// Predicate is optional.
	Predicate Predicate

	Subjects []Subscription

	// Window overrides the correlator's window if it is nonzero.
	Window time.Duration
}

func (c Claim) describeExpectation() string {
	if c.Predicate == nil || c.Predicate.String() == "" {
		return string(c.EventType)
	}
	return fmt.Sprintf("%s with %s", c.EventType, c.Predicate)
}

type Outcome int

const (
	Matched Outcome = iota
	TimedOut
)

func (o Outcome) String() string {
	if o == Matched {
		return "matched"
	}
	return "timed out"
}

// Verdict is the result of a claim for one subject.
type Verdict struct {
	Subject string
	Claim   Claim
	Outcome Outcome

	// Record is the first matching record, if Outcome is Matched.
	Record eventstream.Record

	// Matches is how many records matched. More than one means the event was delivered more
	// than once, which the correlator itself does not treat as a failure.
	Matches int

	// NearMisses are the records of the expected type that did not satisfy the predicate.
	NearMisses []eventstream.Record

	// ConnectionErr is the failure of the subject's connection, if it failed.
	ConnectionErr error

	// Elapsed is the time from the start of evaluation to the verdict.
	Elapsed time.Duration
}

func (v Verdict) Matched() bool {
	return v.Outcome == Matched
}

// Err describes an unmatched verdict. It wraps ErrMismatch if there were near misses, and
// ErrTimedOut otherwise. It returns nil for a matched verdict.
func (v Verdict) Err() error {
	if v.Outcome == Matched {
		return nil
	}
	expected := v.Claim.describeExpectation()
	var err error
	if len(v.NearMisses) > 0 {
		lines := make([]string, 0, len(v.NearMisses))
		for _, r := range v.NearMisses {
			lines = append(lines, "  "+r.String())
		}
		err = fmt.Errorf("%w: %s expected %s after %s; received instead:\n%s", ErrMismatch,
			v.Subject, expected, v.Claim.Action, strings.Join(lines, "\n"))
	} else {
		err = fmt.Errorf("%w: %s expected %s after %s", ErrTimedOut, v.Subject, expected, v.Claim.Action)
	}
	if v.ConnectionErr != nil {
		err = fmt.Errorf("%w (connection failed: %s)", err, v.ConnectionErr)
	}
	return err
}

// Scan looks for records of type t satisfying p. It returns the first match, the number of
// matches, and the records of type t that did not satisfy p.
func Scan(records []eventstream.Record, t servicedef.EventType, p Predicate) (
	first eventstream.Record, matches int, nearMisses []eventstream.Record) {
	match := OfType(t, p)
	for _, r := range records {
		switch {
		case match(r):
			if matches == 0 {
				first = r
			}
			matches++
		case r.Type() == t:
			nearMisses = append(nearMisses, r)
		}
	}
	return
}

type Correlator struct {
	Mode    Mode
	Window  time.Duration
	Loggers ldlog.Loggers
}

func (c Correlator) window(claim Claim) time.Duration {
	switch {
	case claim.Window > 0:
		return claim.Window
	case c.Window > 0:
		return c.Window
	default:
		return DefaultWindow
	}
}

// Evaluate decides the claim for every subject, returning verdicts in the order of
// claim.Subjects. It returns an error only if ctx ends before evaluation is complete.
func (c Correlator) Evaluate(ctx context.Context, claim Claim) ([]Verdict, error) {
	start := time.Now()
	window := c.window(claim)

	if c.Mode == ModeFixedSettle {
		timer := time.NewTimer(window)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		match := OfType(claim.EventType, claim.Predicate)
		for _, s := range claim.Subjects {
			s := s
			g.Go(func() error {
				awaitCtx, cancel := context.WithTimeout(gctx, window)
				defer cancel()
				_, _ = s.Await(awaitCtx, match)
				return ctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	verdicts := make([]Verdict, 0, len(claim.Subjects))
	for _, s := range claim.Subjects {
		v := c.verdictFor(claim, s)
		v.Elapsed = time.Since(start)
		if v.Matched() {
			c.Loggers.Debugf("%s: %s matched %s after %s (record #%d, %d matches)",
				claim.Action, v.Subject, claim.EventType, v.Elapsed, v.Record.Seq, v.Matches)
		} else {
			c.Loggers.Debugf("%s: %s", claim.Action, v.Err())
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, nil
}

func (c Correlator) verdictFor(claim Claim, s Subscription) Verdict {
	// the state is read before the snapshot, so a failure can't hide records that preceded it
	state := s.State()
	first, matches, nearMisses := Scan(s.Events(), claim.EventType, claim.Predicate)
	v := Verdict{
		Subject:    s.Owner(),
		Claim:      claim,
		Outcome:    TimedOut,
		Matches:    matches,
		NearMisses: nearMisses,
	}
	if matches > 0 {
		v.Outcome = Matched
		v.Record = first
	}
	if state == eventstream.StateFailed {
		v.ConnectionErr = s.Err()
	}
	return v
}
