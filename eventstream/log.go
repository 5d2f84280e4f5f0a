package eventstream

import (
	"sync"

	"github.com/rodolfodpk/instagrano-realtime-tests/servicedef"
)

// eventLog is an append-only sequence of records. Every change closes the current changed
// channel and replaces it, so a reader can wait for "anything new" without polling.
type eventLog struct {
	records []Record
	changed chan struct{}
	lock    sync.Mutex
}

func newEventLog() *eventLog {
	return &eventLog{changed: make(chan struct{})}
}

func (l *eventLog) append(r Record) Record {
	l.lock.Lock()
	r.Seq = len(l.records) + 1
	l.records = append(l.records, r)
	l.notifyLocked()
	l.lock.Unlock()
	return r
}

// notify wakes up waiters without appending, for instance when the connection state changes.
func (l *eventLog) notify() {
	l.lock.Lock()
	l.notifyLocked()
	l.lock.Unlock()
}

func (l *eventLog) notifyLocked() {
	close(l.changed)
	l.changed = make(chan struct{})
}

func (l *eventLog) snapshot() []Record {
	l.lock.Lock()
	ret := append([]Record(nil), l.records...)
	l.lock.Unlock()
	return ret
}

// since returns a copy of the records after the first n, and the channel that will be
// closed on the next change.
func (l *eventLog) since(n int) ([]Record, <-chan struct{}) {
	l.lock.Lock()
	defer l.lock.Unlock()
	var ret []Record
	if n < len(l.records) {
		ret = append(ret, l.records[n:]...)
	}
	return ret, l.changed
}

func (l *eventLog) len() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.records)
}

// FilterByType returns the records of the given type, in order. It never returns nil, so an
// empty result is distinguishable from "not computed" in test assertions.
func FilterByType(records []Record, t servicedef.EventType) []Record {
	ret := []Record{}
	for _, r := range records {
		if r.Type() == t {
			ret = append(ret, r)
		}
	}
	return ret
}

// TypeNames lists the frame names of the records, in order, for diagnostic output.
func TypeNames(records []Record) []string {
	ret := make([]string, 0, len(records))
	for _, r := range records {
		ret = append(ret, r.Name)
	}
	return ret
}
