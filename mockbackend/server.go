package mockbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/rodolfodpk/instagrano-realtime-tests/servicedef"
)

const maxUploadSize = 10 << 20

type contextKey struct{}

// Backend is an in-memory implementation of the backend's HTTP and event stream API.
type Backend struct {
	cfg     Config
	store   *store
	tokens  tokenIssuer
	hub     *hub
	router  chi.Router
	loggers ldlog.Loggers
}

func New(cfg Config) *Backend {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Secret == "" {
		cfg.Secret = uuid.NewString()
	}
	b := &Backend{
		cfg:     cfg,
		store:   newStore(),
		tokens:  tokenIssuer{secret: []byte(cfg.Secret)},
		hub:     newHub(cfg.Faults, cfg.Loggers),
		loggers: cfg.Loggers,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(b.logRequests)

	r.Get(servicedef.PathHealth, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post(servicedef.PathRegister, b.handleRegister)
	r.Post(servicedef.PathLogin, b.handleLogin)
	r.Get(servicedef.PathStream, b.handleStream)
	r.Group(func(r chi.Router) {
		r.Use(b.requireAuth)
		r.Get(servicedef.PathFeed, b.handleFeed)
		r.Route(servicedef.PathPosts, func(r chi.Router) {
			r.Post("/", b.handleCreatePost)
			r.Get("/{id}", b.handleGetPost)
			r.Post("/{id}/like", b.handleLike)
			r.Post("/{id}/comment", b.handleComment)
		})
	})
	b.router = r
	return b
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.router.ServeHTTP(w, r)
}

// Close ends all open event streams. The backend refuses new streams afterward.
func (b *Backend) Close() {
	b.hub.close()
}

// Subscribers returns the number of open event streams.
func (b *Backend) Subscribers() int {
	return b.hub.count()
}

// ListenAndServe serves the backend on addr until ctx is done.
func (b *Backend) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	server := &http.Server{Handler: b, ReadHeaderTimeout: time.Second * 10}
	b.loggers.Infof("mock backend listening on http://%s", listener.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(listener) }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	b.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, servicedef.ErrorResponse{Error: msg})
}

func (b *Backend) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		b.loggers.Debugf("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func (b *Backend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}
		userID, err := b.tokens.verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		user, ok := b.store.user(userID)
		if !ok {
			writeError(w, http.StatusUnauthorized, "user not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
	})
}

func currentUser(r *http.Request) servicedef.User {
	u, _ := r.Context().Value(contextKey{}).(servicedef.User)
	return u
}

func postIDParam(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid post id")
	}
	return uint(id), nil
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var cred servicedef.Credential
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if cred.Username == "" || cred.Email == "" || len(cred.Password) < 6 {
		writeError(w, http.StatusBadRequest, "username, email, and a password of at least 6 characters are required")
		return
	}
	user, err := b.store.register(cred)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, servicedef.AuthResponse{User: user})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var params servicedef.LoginParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if b.cfg.Faults.RejectLogin {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	user, err := b.store.authenticate(params.Email, params.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	token, err := b.tokens.issue(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, servicedef.AuthResponse{User: user, Token: token})
}

// handleCreatePost accepts either a JSON body or a multipart form, with the media given by URL
// or as an uploaded file.
func (b *Backend) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var params servicedef.CreatePostParams
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		params.Title = r.FormValue(servicedef.FormFieldTitle)
		params.Caption = r.FormValue(servicedef.FormFieldCaption)
		params.MediaType = servicedef.MediaType(r.FormValue(servicedef.FormFieldMediaType))
		params.MediaURL = r.FormValue(servicedef.FormFieldMediaURL)
		if file, header, err := r.FormFile(servicedef.FormFieldMedia); err == nil {
			_ = file.Close()
			params.MediaURL = fmt.Sprintf("/media/%s-%s", uuid.NewString(), header.Filename)
		}
	} else if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if params.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if params.MediaURL == "" {
		writeError(w, http.StatusBadRequest, "either media file or media_url is required")
		return
	}
	switch params.MediaType {
	case "":
		params.MediaType = servicedef.MediaTypeImage
	case servicedef.MediaTypeImage, servicedef.MediaTypeVideo:
	default:
		writeError(w, http.StatusBadRequest, "media_type must be image or video")
		return
	}

	author := currentUser(r)
	post := b.store.createPost(author, servicedef.Post{
		Title:     params.Title,
		Caption:   params.Caption,
		MediaType: params.MediaType,
		MediaURL:  params.MediaURL,
	})
	b.publish(servicedef.EventTypeNewPost, post.ID, author.ID, servicedef.NewPostData{Post: post})
	writeJSON(w, http.StatusCreated, post)
}

func (b *Backend) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, err := postIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	post, err := b.store.post(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (b *Backend) handleLike(w http.ResponseWriter, r *http.Request) {
	id, err := postIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user := currentUser(r)
	post, err := b.store.toggleLike(user.ID, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	reported := post.LikesCount
	if b.cfg.Faults.WrongLikesCount {
		reported++
	}
	b.publish(servicedef.EventTypePostLiked, post.ID, user.ID,
		servicedef.PostInteractionData{LikesCount: reported, CommentsCount: post.CommentsCount})
	writeJSON(w, http.StatusOK, servicedef.LikeResponse{PostID: post.ID, LikesCount: post.LikesCount})
}

func (b *Backend) handleComment(w http.ResponseWriter, r *http.Request) {
	id, err := postIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var params servicedef.CommentParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil || params.Value() == "" {
		writeError(w, http.StatusBadRequest, "comment text is required")
		return
	}
	user := currentUser(r)
	post, c, err := b.store.addComment(user.ID, id, params.Value())
	if err != nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	b.publish(servicedef.EventTypePostCommented, post.ID, user.ID, servicedef.PostInteractionData{
		LikesCount:    post.LikesCount,
		CommentsCount: post.CommentsCount,
		Comment: &servicedef.EventComment{
			ID:        c.id,
			Text:      c.text,
			Username:  user.Username,
			UserID:    user.ID,
			CreatedAt: c.createdAt.Format(time.RFC3339),
		},
	})
	writeJSON(w, http.StatusOK, servicedef.CommentResponse{PostID: post.ID, CommentsCount: post.CommentsCount})
}

func (b *Backend) handleFeed(w http.ResponseWriter, r *http.Request) {
	limit := DefaultFeedLimit
	if s := r.URL.Query().Get(servicedef.FeedLimitParam); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > maxFeedLimit {
			n = maxFeedLimit
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, b.store.feed(limit))
}

func (b *Backend) publish(t servicedef.EventType, postID, userID uint, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		b.loggers.Errorf("failed to marshal %s event data: %s", t, err)
		return
	}
	b.hub.publish(servicedef.EventEnvelope{
		Type:              t,
		PostID:            postID,
		TriggeredByUserID: userID,
		Data:              raw,
		Timestamp:         time.Now().Unix(),
	})
}
