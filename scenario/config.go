package scenario

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/rodolfodpk/instagrano-realtime-tests/correlate"
	"github.com/rodolfodpk/instagrano-realtime-tests/eventstream"
)

const (
	DefaultUsers     = 2
	DefaultStabilize = time.Second
	DefaultPassword  = "password123"
)

// DuplicatePolicy says what to do when a user receives the same event more than once.
type DuplicatePolicy string

const (
	DuplicatesFail     DuplicatePolicy = "fail"
	DuplicatesTolerate DuplicatePolicy = "tolerate"
)

// String and Set let a DuplicatePolicy be used as a command-line flag value.
func (p DuplicatePolicy) String() string { return string(p) }

func (p *DuplicatePolicy) Set(value string) error {
	switch DuplicatePolicy(value) {
	case DuplicatesFail, DuplicatesTolerate:
		*p = DuplicatePolicy(value)
		return nil
	default:
		return fmt.Errorf("must be %q or %q", DuplicatesFail, DuplicatesTolerate)
	}
}

func (p *DuplicatePolicy) Type() string { return "policy" }

type Config struct {
	// Users is the number of simulated users; at least 2.
	Users int

	// Stabilize is the pause after all streams are open, before the first action.
	Stabilize time.Duration

	// Settle is how long to wait for each expected event.
	Settle time.Duration

	ConnectTimeout time.Duration

	// FeedLimit is the page size requested when verifying the feed. If undefined, the backend's
	// default is used.
	FeedLimit ldvalue.OptionalInt

	Mode       correlate.Mode
	Duplicates DuplicatePolicy

	// SkipComments leaves out the comment action and the post_commented checks.
	SkipComments bool

	// RunID makes the credentials of this run unique. If empty, a random one is generated.
	RunID string

	// StreamLoggers receives the diagnostic output of the event stream connections, which
	// outlive any single check.
	StreamLoggers ldlog.Loggers
}

func (c Config) withDefaults() Config {
	if c.Users < 2 {
		c.Users = DefaultUsers
	}
	if c.Stabilize <= 0 {
		c.Stabilize = DefaultStabilize
	}
	if c.Settle <= 0 {
		c.Settle = correlate.DefaultWindow
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = eventstream.DefaultConnectTimeout
	}
	if c.Duplicates == "" {
		c.Duplicates = DuplicatesFail
	}
	if c.RunID == "" {
		c.RunID = strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	}
	return c
}
