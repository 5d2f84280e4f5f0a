package correlate

import (
	"fmt"
	"strings"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/rodolfodpk/instagrano-realtime-tests/eventstream"
	"github.com/rodolfodpk/instagrano-realtime-tests/servicedef"
)

// Predicate is a condition on an event's payload. Its String form is used in verdicts.
type Predicate interface {
	Matches(r eventstream.Record) bool
	String() string
}

type predicateFunc struct {
	description string
	fn          func(eventstream.Record) bool
}

func (p predicateFunc) Matches(r eventstream.Record) bool { return p.fn(r) }
func (p predicateFunc) String() string                    { return p.description }

// Func makes a Predicate from a function.
func Func(description string, fn func(eventstream.Record) bool) Predicate {
	return predicateFunc{description, fn}
}

func intField(v ldvalue.Value, path ...string) (int, bool) {
	for _, key := range path {
		v = v.GetByKey(key)
	}
	if !v.IsNumber() {
		return 0, false
	}
	return v.IntValue(), true
}

func fieldEquals(description string, expected int, path ...string) Predicate {
	return Func(description, func(r eventstream.Record) bool {
		n, ok := intField(r.Payload, path...)
		return ok && n == expected
	})
}

// PostID matches events whose post_id is the given post.
func PostID(id uint) Predicate {
	return fieldEquals(fmt.Sprintf("post_id=%d", id), int(id), "post_id")
}

// TriggeredBy matches events caused by the given user.
func TriggeredBy(userID uint) Predicate {
	return fieldEquals(fmt.Sprintf("triggered_by_user_id=%d", userID), int(userID), "triggered_by_user_id")
}

func LikesCount(n int) Predicate {
	return fieldEquals(fmt.Sprintf("likes_count=%d", n), n, "data", "likes_count")
}

func CommentsCount(n int) Predicate {
	return fieldEquals(fmt.Sprintf("comments_count=%d", n), n, "data", "comments_count")
}

// All matches when every one of the predicates matches. With no predicates it matches anything.
func All(predicates ...Predicate) Predicate {
	var descriptions []string
	for _, p := range predicates {
		descriptions = append(descriptions, p.String())
	}
	return Func(strings.Join(descriptions, ", "), func(r eventstream.Record) bool {
		for _, p := range predicates {
			if !p.Matches(r) {
				return false
			}
		}
		return true
	})
}

// OfType matches records of one event type whose payload decoded successfully and that satisfy
// the predicate, if any.
func OfType(t servicedef.EventType, p Predicate) func(eventstream.Record) bool {
	return func(r eventstream.Record) bool {
		if r.Type() != t {
			return false
		}
		if _, malformed := r.Event.(eventstream.MalformedEvent); malformed {
			return false
		}
		return p == nil || p.Matches(r)
	}
}
