package mockbackend

import (
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/rodolfodpk/instagrano-realtime-tests/servicedef"
)

const (
	DefaultHeartbeatInterval = time.Second * 30
	DefaultFeedLimit         = 20
	maxFeedLimit             = 100
)

// Config controls the mock backend. The zero value is a well-behaved backend that delivers
// every event to every subscriber exactly once, including events a user caused themselves.
type Config struct {
	// Secret signs the JWT tokens. If empty, a random secret is generated.
	Secret string

	HeartbeatInterval time.Duration

	Faults Faults

	Loggers ldlog.Loggers
}

// Faults are deliberate deviations from correct behavior, for verifying that the harness
// detects them.
type Faults struct {
	// FilterSelf withholds events from the user who triggered them, as some backend versions do.
	FilterSelf bool

	// Drop lists event types that are never delivered.
	Drop []servicedef.EventType

	// Duplicate lists event types that are delivered twice.
	Duplicate []servicedef.EventType

	// DuplicateDelay postpones the second copy of a duplicated event.
	DuplicateDelay time.Duration

	// Delay postpones the delivery of every domain event.
	Delay time.Duration

	// WrongLikesCount makes post_liked events report a count one higher than the real one.
	WrongLikesCount bool

	// RejectStream makes the stream endpoint answer 503.
	RejectStream bool

	// RejectLogin makes every login fail with 401.
	RejectLogin bool
}

func containsType(types []servicedef.EventType, t servicedef.EventType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}
