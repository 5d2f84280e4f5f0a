package mockbackend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/rodolfodpk/instagrano-realtime-tests/servicedef"
)

const subscriberBufferSize = 100

// hub fans events out to the open stream connections.
type hub struct {
	faults      Faults
	loggers     ldlog.Loggers
	subscribers map[string]*subscriber
	closed      bool
	lock        sync.Mutex
}

type subscriber struct {
	id     string
	userID uint
	frames chan []byte
	done   chan struct{}
}

func newHub(faults Faults, loggers ldlog.Loggers) *hub {
	return &hub{faults: faults, loggers: loggers, subscribers: make(map[string]*subscriber)}
}

func (h *hub) subscribe(userID uint) (*subscriber, bool) {
	s := &subscriber{
		id:     uuid.NewString(),
		userID: userID,
		frames: make(chan []byte, subscriberBufferSize),
		done:   make(chan struct{}),
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.closed {
		return nil, false
	}
	h.subscribers[s.id] = s
	return s, true
}

func (h *hub) unsubscribe(s *subscriber) {
	h.lock.Lock()
	if _, ok := h.subscribers[s.id]; ok {
		delete(h.subscribers, s.id)
		close(s.done)
	}
	h.lock.Unlock()
}

func (h *hub) count() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.subscribers)
}

// close ends every stream and refuses new ones.
func (h *hub) close() {
	h.lock.Lock()
	h.closed = true
	for id, s := range h.subscribers {
		delete(h.subscribers, id)
		close(s.done)
	}
	h.lock.Unlock()
}

func (h *hub) publish(event servicedef.EventEnvelope) {
	if containsType(h.faults.Drop, event.Type) {
		h.loggers.Debugf("dropping %s event for post %d", event.Type, event.PostID)
		return
	}
	frame, err := formatFrame(string(event.Type), event)
	if err != nil {
		h.loggers.Errorf("failed to marshal %s event: %s", event.Type, err)
		return
	}
	copies := 1
	if containsType(h.faults.Duplicate, event.Type) {
		copies = 2
	}

	h.lock.Lock()
	var targets []*subscriber
	for _, s := range h.subscribers {
		if h.faults.FilterSelf && s.userID == event.TriggeredByUserID {
			continue
		}
		targets = append(targets, s)
	}
	h.lock.Unlock()

	deliver := func() {
		for _, s := range targets {
			s.send(frame, h.loggers)
		}
		if copies < 2 {
			return
		}
		duplicate := func() {
			for _, s := range targets {
				s.send(frame, h.loggers)
			}
		}
		if h.faults.DuplicateDelay > 0 {
			time.AfterFunc(h.faults.DuplicateDelay, duplicate)
		} else {
			duplicate()
		}
	}
	if h.faults.Delay > 0 {
		time.AfterFunc(h.faults.Delay, deliver)
	} else {
		deliver()
	}
}

func (s *subscriber) send(frame []byte, loggers ldlog.Loggers) {
	select {
	case <-s.done:
	case s.frames <- frame:
	default:
		loggers.Warnf("subscriber %s for user %d is not keeping up; event dropped", s.id, s.userID)
	}
}

func formatFrame(name string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", name, data)), nil
}

func (b *Backend) handleStream(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get(servicedef.StreamTokenParam)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "token required")
		return
	}
	userID, err := b.tokens.verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if b.cfg.Faults.RejectStream {
		writeError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	sub, ok := b.hub.subscribe(userID)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	defer b.hub.unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	connected, _ := formatFrame(string(servicedef.EventTypeConnected),
		servicedef.ConnectedData{Message: "Connected to real-time updates", UserID: userID})
	if _, err := w.Write(connected); err != nil {
		return
	}
	flusher.Flush()
	b.loggers.Debugf("stream %s opened for user %d", sub.id, userID)

	heartbeat := time.NewTicker(b.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	for {
		var frame []byte
		select {
		case frame = <-sub.frames:
		case <-heartbeat.C:
			frame, _ = formatFrame(string(servicedef.EventTypeHeartbeat),
				servicedef.HeartbeatData{Timestamp: time.Now().Unix()})
		case <-sub.done:
			b.loggers.Debugf("stream %s for user %d ended by server", sub.id, userID)
			return
		case <-r.Context().Done():
			b.loggers.Debugf("stream %s for user %d closed by client", sub.id, userID)
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		flusher.Flush()
	}
}
