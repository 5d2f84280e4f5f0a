package servicedef

import "encoding/json"

// EventType is the name of an SSE frame, as given by its "event:" field.
type EventType string

const (
	// EventTypeMessage is the SSE default for frames that have no "event:" field. Its data is
	// not required to be JSON.
	EventTypeMessage       EventType = "message"
	EventTypeConnected     EventType = "connected"
	EventTypeHeartbeat     EventType = "heartbeat"
	EventTypeNewPost       EventType = "new_post"
	EventTypePostLiked     EventType = "post_liked"
	EventTypePostCommented EventType = "post_commented"
	EventTypePostDeleted   EventType = "post_deleted"
)

// KnownEventTypes are the frame types the backend is documented to send.
var KnownEventTypes = []EventType{
	EventTypeMessage,
	EventTypeConnected,
	EventTypeHeartbeat,
	EventTypeNewPost,
	EventTypePostLiked,
	EventTypePostCommented,
	EventTypePostDeleted,
}

// IsKnown returns true if t is one of KnownEventTypes.
func (t EventType) IsKnown() bool {
	for _, k := range KnownEventTypes {
		if k == t {
			return true
		}
	}
	return false
}

// EventEnvelope is the payload of every domain event frame (new_post, post_liked,
// post_commented, post_deleted). Data depends on Type.
type EventEnvelope struct {
	Type              EventType       `json:"type"`
	PostID            uint            `json:"post_id"`
	TriggeredByUserID uint            `json:"triggered_by_user_id"`
	Data              json.RawMessage `json:"data"`
	Timestamp         int64           `json:"timestamp"`
}

// NewPostData is the Data of a new_post event.
type NewPostData struct {
	Post Post `json:"post"`
}

// PostInteractionData is the Data of post_liked and post_commented events.
type PostInteractionData struct {
	LikesCount    int           `json:"likes_count"`
	CommentsCount int           `json:"comments_count"`
	Comment       *EventComment `json:"comment,omitempty"`
}

type EventComment struct {
	ID        uint   `json:"id"`
	Text      string `json:"text"`
	Username  string `json:"username"`
	UserID    uint   `json:"user_id"`
	CreatedAt string `json:"created_at"`
}

// ConnectedData is the payload of the connected frame sent when a stream opens.
type ConnectedData struct {
	Message string `json:"message"`
	UserID  uint   `json:"user_id"`
}

type HeartbeatData struct {
	Timestamp int64 `json:"timestamp"`
}
