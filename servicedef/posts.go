package servicedef

import "time"

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// CreatePostParams is the JSON form of a post creation request, used when the media is given
// as a URL rather than uploaded.
type CreatePostParams struct {
	Title     string    `json:"title"`
	Caption   string    `json:"caption"`
	MediaType MediaType `json:"media_type,omitempty"`
	MediaURL  string    `json:"media_url,omitempty"`
}

// Multipart form field names for post creation with an uploaded file.
const (
	FormFieldTitle     = "title"
	FormFieldCaption   = "caption"
	FormFieldMediaType = "media_type"
	FormFieldMedia     = "media"
	FormFieldMediaURL  = "media_url"
)

type Post struct {
	ID            uint      `json:"id"`
	UserID        uint      `json:"user_id"`
	Username      string    `json:"username"`
	Title         string    `json:"title"`
	Caption       string    `json:"caption"`
	MediaType     MediaType `json:"media_type"`
	MediaURL      string    `json:"media_url"`
	LikesCount    int       `json:"likes_count"`
	CommentsCount int       `json:"comments_count"`
	ViewsCount    int       `json:"views_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type LikeResponse struct {
	PostID     uint `json:"post_id"`
	LikesCount int  `json:"likes_count"`
}

// CommentParams carries the comment text under both field names that versions of the
// backend have accepted.
type CommentParams struct {
	Text    string `json:"text"`
	Content string `json:"content"`
}

func NewCommentParams(text string) CommentParams {
	return CommentParams{Text: text, Content: text}
}

// Value returns whichever of the two text fields is set.
func (p CommentParams) Value() string {
	if p.Text != "" {
		return p.Text
	}
	return p.Content
}

type CommentResponse struct {
	PostID        uint `json:"post_id"`
	CommentsCount int  `json:"comments_count"`
}

type FeedResponse struct {
	Posts      []Post `json:"posts"`
	NextCursor string `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

// FindPost returns the post with the given ID from this page of the feed.
func (f FeedResponse) FindPost(id uint) (Post, bool) {
	for _, p := range f.Posts {
		if p.ID == id {
			return p, true
		}
	}
	return Post{}, false
}
