package mockbackend

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rodolfodpk/instagrano-realtime-tests/servicedef"
)

var (
	errNotFound           = errors.New("not found")
	errAlreadyRegistered  = errors.New("username or email already registered")
	errInvalidCredentials = errors.New("invalid credentials")
)

type account struct {
	user     servicedef.User
	password string
}

type comment struct {
	id        uint
	postID    uint
	userID    uint
	text      string
	createdAt time.Time
}

type likeKey struct {
	postID, userID uint
}

// store is the in-memory state of the backend.
type store struct {
	accounts   map[uint]*account
	posts      map[uint]*servicedef.Post
	likes      map[likeKey]bool
	comments   []comment
	lastUserID uint
	lastPostID uint
	lock       sync.Mutex
}

func newStore() *store {
	return &store{
		accounts: make(map[uint]*account),
		posts:    make(map[uint]*servicedef.Post),
		likes:    make(map[likeKey]bool),
	}
}

func (s *store) register(cred servicedef.Credential) (servicedef.User, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.user.Email, cred.Email) || a.user.Username == cred.Username {
			return servicedef.User{}, errAlreadyRegistered
		}
	}
	s.lastUserID++
	a := &account{
		user: servicedef.User{
			ID:        s.lastUserID,
			Username:  cred.Username,
			Email:     cred.Email,
			CreatedAt: time.Now().UTC(),
		},
		password: cred.Password,
	}
	s.accounts[a.user.ID] = a
	return a.user, nil
}

func (s *store) authenticate(email, password string) (servicedef.User, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.user.Email, email) && a.password == password {
			return a.user, nil
		}
	}
	return servicedef.User{}, errInvalidCredentials
}

func (s *store) user(id uint) (servicedef.User, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if a, ok := s.accounts[id]; ok {
		return a.user, true
	}
	return servicedef.User{}, false
}

func (s *store) createPost(author servicedef.User, p servicedef.Post) servicedef.Post {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.lastPostID++
	now := time.Now().UTC()
	p.ID = s.lastPostID
	p.UserID = author.ID
	p.Username = author.Username
	p.CreatedAt, p.UpdatedAt = now, now
	stored := p
	s.posts[p.ID] = &stored
	return p
}

func (s *store) post(id uint) (servicedef.Post, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if p, ok := s.posts[id]; ok {
		return *p, nil
	}
	return servicedef.Post{}, errNotFound
}

// toggleLike likes the post, or removes the like if the user already liked it.
func (s *store) toggleLike(userID, postID uint) (servicedef.Post, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return servicedef.Post{}, errNotFound
	}
	key := likeKey{postID, userID}
	if s.likes[key] {
		delete(s.likes, key)
		p.LikesCount--
	} else {
		s.likes[key] = true
		p.LikesCount++
	}
	p.UpdatedAt = time.Now().UTC()
	return *p, nil
}

func (s *store) addComment(userID, postID uint, text string) (servicedef.Post, comment, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return servicedef.Post{}, comment{}, errNotFound
	}
	c := comment{
		id:        uint(len(s.comments) + 1),
		postID:    postID,
		userID:    userID,
		text:      text,
		createdAt: time.Now().UTC(),
	}
	s.comments = append(s.comments, c)
	p.CommentsCount++
	p.UpdatedAt = c.createdAt
	return *p, c, nil
}

// feed returns the newest posts first, at most limit of them.
func (s *store) feed(limit int) servicedef.FeedResponse {
	s.lock.Lock()
	defer s.lock.Unlock()
	posts := make([]servicedef.Post, 0, len(s.posts))
	for _, p := range s.posts {
		posts = append(posts, *p)
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].ID > posts[j].ID })
	resp := servicedef.FeedResponse{Posts: posts}
	if len(posts) > limit {
		resp.Posts = posts[:limit]
		resp.HasMore = true
		resp.NextCursor = encodeCursor(resp.Posts[limit-1].ID)
	}
	return resp
}
