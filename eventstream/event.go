package eventstream

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/rodolfodpk/instagrano-realtime-tests/servicedef"
)

// EventTypeUnrecognized is the Type of a record whose frame name is not one of
// servicedef.KnownEventTypes. The original name is kept in Record.Name.
const EventTypeUnrecognized servicedef.EventType = "unrecognized"

// Event is the decoded content of a frame. The concrete type depends on the frame name:
//
//   - MessageEvent for unnamed frames, whose data is opaque
//   - ConnectedEvent and HeartbeatEvent for the stream's own control frames
//   - NewPostEvent, InteractionEvent, and PostDeletedEvent for domain events
//   - UnrecognizedEvent for any other frame name
//   - MalformedEvent for a known frame name whose data could not be decoded
type Event interface {
	Type() servicedef.EventType
	isEvent()
}

// EnvelopeEvent is implemented by every domain event, all of which carry the common
// envelope fields.
type EnvelopeEvent interface {
	Event
	Envelope() servicedef.EventEnvelope
}

type MessageEvent struct {
	Data string
}

type ConnectedEvent struct {
	servicedef.ConnectedData
}

type HeartbeatEvent struct {
	servicedef.HeartbeatData
}

type NewPostEvent struct {
	Header servicedef.EventEnvelope
	Post   servicedef.Post
}

// InteractionEvent is a post_liked or post_commented event.
type InteractionEvent struct {
	Header servicedef.EventEnvelope
	servicedef.PostInteractionData
}

type PostDeletedEvent struct {
	Header servicedef.EventEnvelope
}

type UnrecognizedEvent struct {
	Name string
	Data string
}

type MalformedEvent struct {
	EventType servicedef.EventType
	Data      string
	Err       error
}

func (MessageEvent) Type() servicedef.EventType       { return servicedef.EventTypeMessage }
func (ConnectedEvent) Type() servicedef.EventType     { return servicedef.EventTypeConnected }
func (HeartbeatEvent) Type() servicedef.EventType     { return servicedef.EventTypeHeartbeat }
func (NewPostEvent) Type() servicedef.EventType       { return servicedef.EventTypeNewPost }
func (e InteractionEvent) Type() servicedef.EventType { return e.Header.Type }
func (PostDeletedEvent) Type() servicedef.EventType   { return servicedef.EventTypePostDeleted }
func (UnrecognizedEvent) Type() servicedef.EventType  { return EventTypeUnrecognized }
func (e MalformedEvent) Type() servicedef.EventType   { return e.EventType }

func (MessageEvent) isEvent()      {}
func (ConnectedEvent) isEvent()    {}
func (HeartbeatEvent) isEvent()    {}
func (NewPostEvent) isEvent()      {}
func (InteractionEvent) isEvent()  {}
func (PostDeletedEvent) isEvent()  {}
func (UnrecognizedEvent) isEvent() {}
func (MalformedEvent) isEvent()    {}

func (e NewPostEvent) Envelope() servicedef.EventEnvelope     { return e.Header }
func (e InteractionEvent) Envelope() servicedef.EventEnvelope { return e.Header }
func (e PostDeletedEvent) Envelope() servicedef.EventEnvelope { return e.Header }

// Record is one frame as it was received on a connection.
type Record struct {
	// Seq is the 1-based position of this record in its connection's log.
	Seq int

	// Name is the frame name exactly as sent; "message" for unnamed frames.
	Name string

	// ID is the SSE event ID in effect for this frame, if any.
	ID string

	// Data is the raw frame data.
	Data string

	// Payload is Data parsed as JSON, or a null value if Data is not JSON. It is the generic
	// view of the frame, for predicates that do not care about the concrete Event type.
	Payload ldvalue.Value

	Event      Event
	ReceivedAt time.Time
}

func (r Record) Type() servicedef.EventType {
	if r.Event == nil {
		return ""
	}
	return r.Event.Type()
}

// PostID returns the post_id field of a domain event.
func (r Record) PostID() (uint, bool) {
	if e, ok := r.Event.(EnvelopeEvent); ok {
		return e.Envelope().PostID, true
	}
	return 0, false
}

func (r Record) String() string {
	return fmt.Sprintf("#%d %s: %s", r.Seq, r.Name, r.Data)
}

func decodeRecord(f frame, receivedAt time.Time) Record {
	r := Record{
		Name:       f.name,
		ID:         f.id,
		Data:       f.data,
		Event:      decodeEvent(servicedef.EventType(f.name), f.data),
		ReceivedAt: receivedAt,
	}
	if json.Valid([]byte(f.data)) {
		r.Payload = ldvalue.Parse([]byte(f.data))
	}
	return r
}

func decodeEvent(t servicedef.EventType, data string) Event {
	malformed := func(err error) Event {
		return MalformedEvent{EventType: t, Data: data, Err: err}
	}
	switch t {
	case servicedef.EventTypeMessage:
		return MessageEvent{Data: data}
	case servicedef.EventTypeConnected:
		var e ConnectedEvent
		if err := json.Unmarshal([]byte(data), &e.ConnectedData); err != nil {
			return malformed(err)
		}
		return e
	case servicedef.EventTypeHeartbeat:
		var e HeartbeatEvent
		if err := json.Unmarshal([]byte(data), &e.HeartbeatData); err != nil {
			return malformed(err)
		}
		return e
	case servicedef.EventTypeNewPost, servicedef.EventTypePostLiked,
		servicedef.EventTypePostCommented, servicedef.EventTypePostDeleted:
		var header servicedef.EventEnvelope
		if err := json.Unmarshal([]byte(data), &header); err != nil {
			return malformed(err)
		}
		if header.Type == "" {
			header.Type = t
		} else if header.Type != t {
			return malformed(fmt.Errorf("frame named %q carries an event of type %q", t, header.Type))
		}
		return decodeDomainEvent(header, malformed)
	default:
		return UnrecognizedEvent{Name: string(t), Data: data}
	}
}

func decodeDomainEvent(header servicedef.EventEnvelope, malformed func(error) Event) Event {
	hasData := len(header.Data) > 0 && string(header.Data) != "null"
	switch header.Type {
	case servicedef.EventTypeNewPost:
		e := NewPostEvent{Header: header}
		if hasData {
			var d servicedef.NewPostData
			if err := json.Unmarshal(header.Data, &d); err != nil {
				return malformed(fmt.Errorf("invalid new_post data: %w", err))
			}
			e.Post = d.Post
		}
		return e
	case servicedef.EventTypePostDeleted:
		return PostDeletedEvent{Header: header}
	default:
		e := InteractionEvent{Header: header}
		if hasData {
			if err := json.Unmarshal(header.Data, &e.PostInteractionData); err != nil {
				return malformed(fmt.Errorf("invalid %s data: %w", header.Type, err))
			}
		}
		return e
	}
}
