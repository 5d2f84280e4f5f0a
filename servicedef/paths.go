package servicedef

import "fmt"

const (
	PathHealth   = "/health"
	PathRegister = "/api/auth/register"
	PathLogin    = "/api/auth/login"
	PathPosts    = "/api/posts"
	PathFeed     = "/api/feed"
	PathStream   = "/api/events/stream"

	// StreamTokenParam is the query parameter that carries the bearer token on the stream
	// endpoint, since a streaming handshake cannot carry custom headers in browser clients.
	StreamTokenParam = "token"

	// FeedLimitParam is the query parameter for the maximum number of posts in a feed page.
	FeedLimitParam = "limit"
)

func PostPath(postID uint) string {
	return fmt.Sprintf("%s/%d", PathPosts, postID)
}

func LikePath(postID uint) string {
	return PostPath(postID) + "/like"
}

func CommentPath(postID uint) string {
	return PostPath(postID) + "/comment"
}
