package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/rodolfodpk/instagrano-realtime-tests/servicedef"
)

// CreatePostParams describes a post to create. The media is either MediaURL or, if
// MediaFile is non-nil, an uploaded file.
type CreatePostParams struct {
	Title         string
	Caption       string
	MediaType     servicedef.MediaType
	MediaURL      string
	MediaFile     []byte
	MediaFileName string
}

// AwaitService polls the backend's health resource until it answers, so that a harness run
// does not start against a backend that is still booting. It gives up with the last error
// once the timeout elapses. A response with a status other than 200 is an immediate failure.
func (c *Client) AwaitService(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(time.Millisecond * 100)
	defer ticker.Stop()
	for {
		err := c.send(ctx, call{op: "health", method: http.MethodGet, path: servicedef.PathHealth}, nil)
		if err == nil || !errors.Is(err, ErrTransport) {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for backend at %s, result of last query was: %w", c.baseURL, err)
		case <-ticker.C:
		}
	}
}

// Register creates a user account. Registration does not log the user in.
func (c *Client) Register(ctx context.Context, cred servicedef.Credential) (servicedef.User, error) {
	cl, err := jsonCall("register", http.MethodPost, servicedef.PathRegister, nil, cred)
	if err != nil {
		return servicedef.User{}, err
	}
	var resp servicedef.AuthResponse
	if err := c.send(ctx, cl, &resp); err != nil {
		return servicedef.User{}, err
	}
	return resp.User, nil
}

// Login authenticates a user and returns the session to use for all of that user's later
// calls and for the event stream.
func (c *Client) Login(ctx context.Context, cred servicedef.Credential) (Session, error) {
	cl, err := jsonCall("login", http.MethodPost, servicedef.PathLogin, nil,
		servicedef.LoginParams{Email: cred.Email, Password: cred.Password})
	if err != nil {
		return Session{}, err
	}
	var resp servicedef.AuthResponse
	if err := c.send(ctx, cl, &resp); err != nil {
		return Session{}, err
	}
	if resp.Token == "" {
		return Session{}, &RequestError{Op: cl.op, Method: cl.method, URL: c.baseURL + cl.path,
			StatusCode: http.StatusOK, Kind: ErrServer, Err: errors.New("login response had no token")}
	}
	session := Session{UserID: resp.User.ID, Username: resp.User.Username, Token: resp.Token}
	if session.Username == "" {
		session.Username = cred.Username
	}
	if session.UserID == 0 {
		id, err := userIDFromToken(resp.Token)
		if err != nil {
			c.loggers.Warnf("login response for %s had no user ID, and %s", cred.Username, err)
		}
		session.UserID = id
	}
	return session, nil
}

// CreatePost creates a post as a multipart form, which the backend accepts both for uploads and
// for media given by URL.
func (c *Client) CreatePost(ctx context.Context, s Session, params CreatePostParams) (servicedef.Post, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := []struct{ name, value string }{
		{servicedef.FormFieldTitle, params.Title},
		{servicedef.FormFieldCaption, params.Caption},
		{servicedef.FormFieldMediaType, string(params.MediaType)},
		{servicedef.FormFieldMediaURL, params.MediaURL},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := w.WriteField(f.name, f.value); err != nil {
			return servicedef.Post{}, err
		}
	}
	if params.MediaFile != nil {
		name := params.MediaFileName
		if name == "" {
			name = "upload.bin"
		}
		part, err := w.CreateFormFile(servicedef.FormFieldMedia, name)
		if err != nil {
			return servicedef.Post{}, err
		}
		if _, err := part.Write(params.MediaFile); err != nil {
			return servicedef.Post{}, err
		}
	}
	if err := w.Close(); err != nil {
		return servicedef.Post{}, err
	}

	cl := call{
		op:          "create post",
		method:      http.MethodPost,
		path:        servicedef.PathPosts,
		session:     &s,
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
	}
	var post servicedef.Post
	if err := c.send(ctx, cl, &post); err != nil {
		return servicedef.Post{}, err
	}
	return post, nil
}

func (c *Client) Like(ctx context.Context, s Session, postID uint) (servicedef.LikeResponse, error) {
	cl := call{op: "like", method: http.MethodPost, path: servicedef.LikePath(postID), session: &s}
	var resp servicedef.LikeResponse
	if err := c.send(ctx, cl, &resp); err != nil {
		return servicedef.LikeResponse{}, err
	}
	return resp, nil
}

func (c *Client) Comment(ctx context.Context, s Session, postID uint, text string) (servicedef.CommentResponse, error) {
	cl, err := jsonCall("comment", http.MethodPost, servicedef.CommentPath(postID), &s,
		servicedef.NewCommentParams(text))
	if err != nil {
		return servicedef.CommentResponse{}, err
	}
	var resp servicedef.CommentResponse
	if err := c.send(ctx, cl, &resp); err != nil {
		return servicedef.CommentResponse{}, err
	}
	return resp, nil
}

// GetFeed fetches the first page of the feed. If limit is undefined, the backend's default
// page size applies.
func (c *Client) GetFeed(ctx context.Context, s Session, limit ldvalue.OptionalInt) (servicedef.FeedResponse, error) {
	cl := call{op: "get feed", method: http.MethodGet, path: servicedef.PathFeed, session: &s}
	if limit.IsDefined() {
		cl.query = url.Values{servicedef.FeedLimitParam: []string{strconv.Itoa(limit.IntValue())}}
	}
	var resp servicedef.FeedResponse
	if err := c.send(ctx, cl, &resp); err != nil {
		return servicedef.FeedResponse{}, err
	}
	return resp, nil
}

func (c *Client) GetPost(ctx context.Context, s Session, postID uint) (servicedef.Post, error) {
	cl := call{op: "get post", method: http.MethodGet, path: servicedef.PostPath(postID), session: &s}
	var post servicedef.Post
	if err := c.send(ctx, cl, &post); err != nil {
		return servicedef.Post{}, err
	}
	return post, nil
}

// StreamURL returns the event stream URL for a session, with the token as a query parameter.
func (c *Client) StreamURL(s Session) string {
	q := url.Values{servicedef.StreamTokenParam: []string{s.Token}}
	return c.baseURL + servicedef.PathStream + "?" + q.Encode()
}
