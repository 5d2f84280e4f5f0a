package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rodolfodpk/instagrano-realtime-tests/apiclient"
	"github.com/rodolfodpk/instagrano-realtime-tests/correlate"
	"github.com/rodolfodpk/instagrano-realtime-tests/eventstream"
	"github.com/rodolfodpk/instagrano-realtime-tests/framework"
	"github.com/rodolfodpk/instagrano-realtime-tests/servicedef"
)

type simulatedUser struct {
	name    string
	cred    servicedef.Credential
	session apiclient.Session
	conn    *eventstream.Connection
}

type runner struct {
	ctx    context.Context
	client *apiclient.Client
	cfg    Config
	users  []*simulatedUser

	post     *servicedef.Post
	likes    *servicedef.LikeResponse
	comments *servicedef.CommentResponse
}

// RunRealtimeScenario runs the scripted real-time scenario against the backend that client
// points to, and returns the results of every check. It never panics on a check failure; a
// failure during user or stream setup aborts the rest of the run.
func RunRealtimeScenario(
	ctx context.Context,
	client *apiclient.Client,
	cfg Config,
	filter framework.Filter,
	testLogger framework.TestLogger,
) framework.Results {
	r := &runner{ctx: ctx, client: client, cfg: cfg.withDefaults()}
	for i := 1; i <= r.cfg.Users; i++ {
		name := fmt.Sprintf("user%d", i)
		username := fmt.Sprintf("rt_%s_%s", r.cfg.RunID, name)
		r.users = append(r.users, &simulatedUser{
			name: name,
			cred: servicedef.Credential{
				Username: username,
				Email:    username + "@example.com",
				Password: DefaultPassword,
			},
		})
	}

	return framework.Run(filter, testLogger, func(c *framework.Context) {
		c.Defer(r.closeConnections)

		c.RunRequired("user setup", r.setUpUsers)
		c.RunRequired("stream connection setup", r.openStreams)
		c.RunRequired("post creation", r.createPost)
		c.Run("new_post broadcast", r.checkNewPostBroadcast)
		c.RunRequired("like action", r.likePost)
		c.Run("post_liked delivery", r.checkLikeDelivery)
		if !r.cfg.SkipComments {
			c.RunRequired("comment action", r.commentOnPost)
			c.Run("post_commented delivery", r.checkCommentDelivery)
		}
		c.Run("duplicate delivery", r.checkDuplicates)
		c.Run("feed verification", r.checkFeeds)
		c.RunRequired("teardown", r.tearDown)
	})
}

func (r *runner) author() *simulatedUser { return r.users[0] }
func (r *runner) actor() *simulatedUser  { return r.users[len(r.users)-1] }

func (r *runner) subscriptions() []correlate.Subscription {
	ret := make([]correlate.Subscription, 0, len(r.users))
	for _, u := range r.users {
		ret = append(ret, u.conn)
	}
	return ret
}

func (r *runner) correlator(c *framework.Context) correlate.Correlator {
	return correlate.Correlator{Mode: r.cfg.Mode, Window: r.cfg.Settle, Loggers: c.Loggers()}
}

func (r *runner) checkInterrupted(c *framework.Context) {
	if err := r.ctx.Err(); err != nil {
		c.Abort("run was interrupted: %s", err)
	}
}

func (r *runner) setUpUsers(c *framework.Context) {
	client := r.client.Logging(c.Loggers())
	for _, u := range r.users {
		r.checkInterrupted(c)
		user, err := client.Register(r.ctx, u.cred)
		if err != nil {
			c.Abort("%s could not register: %s", u.name, err)
		}
		c.Debug("registered %s as %q with ID %d", u.name, user.Username, user.ID)

		session, err := client.Login(r.ctx, u.cred)
		if err != nil {
			c.Abort("%s could not log in: %s", u.name, err)
		}
		if session.UserID == 0 {
			session.UserID = user.ID
		}
		u.session = session
		c.Debug("%s logged in with user ID %d", u.name, session.UserID)
	}
}

func (r *runner) openStreams(c *framework.Context) {
	for _, u := range r.users {
		u.conn = eventstream.New(eventstream.Config{
			URL:            r.client.StreamURL(u.session),
			Owner:          u.name,
			ConnectTimeout: r.cfg.ConnectTimeout,
			Loggers:        r.cfg.StreamLoggers,
		})
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(r.ctx)
	for _, u := range r.users {
		u := u
		g.Go(func() error {
			if err := u.conn.Connect(gctx); err != nil {
				return fmt.Errorf("%s could not open event stream: %w", u.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.Abort("%s", err)
	}
	c.Debug("all %d streams open after %s", len(r.users), time.Since(start))

	select {
	case <-time.After(r.cfg.Stabilize):
	case <-r.ctx.Done():
	}
	r.checkInterrupted(c)
	for _, u := range r.users {
		if u.conn.State() != eventstream.StateOpen {
			c.Abort("%s's event stream failed while stabilizing: %s", u.name, u.conn.Err())
		}
	}
}

func (r *runner) createPost(c *framework.Context) {
	r.checkInterrupted(c)
	post, err := r.client.Logging(c.Loggers()).CreatePost(r.ctx, r.author().session, apiclient.CreatePostParams{
		Title:     "Realtime check " + r.cfg.RunID,
		Caption:   "Posted by the real-time event stream harness",
		MediaType: servicedef.MediaTypeImage,
		MediaURL:  "https://picsum.photos/seed/" + r.cfg.RunID + "/400/400",
	})
	require.NoError(c, err, "%s could not create a post", r.author().name)
	require.NotZero(c, post.ID, "created post has no ID")
	r.post = &post
	c.Debug("%s created post %d", r.author().name, post.ID)
}

func (r *runner) requirePost(c *framework.Context) servicedef.Post {
	if r.post == nil {
		c.SkipWithReason("no post was created")
	}
	return *r.post
}

// evaluate runs the claim and then one subcheck per user, reporting each user's verdict with
// report.
func (r *runner) evaluate(c *framework.Context, claim correlate.Claim,
	report func(*framework.Context, correlate.Verdict)) {
	verdicts, err := r.correlator(c).Evaluate(r.ctx, claim)
	if err != nil {
		c.Abort("run was interrupted: %s", err)
	}
	for i, v := range verdicts {
		u := r.users[i]
		c.Run(u.name, func(c *framework.Context) {
			debugRecords(c, u)
			report(c, v)
		})
	}
}

func debugRecords(c *framework.Context, u *simulatedUser) {
	records := u.conn.Events()
	c.Debug("%s's stream is %s with %d events: %s", u.name, u.conn.State(), len(records),
		strings.Join(eventstream.TypeNames(records), ", "))
	for _, rec := range records {
		c.Debug("  %s", rec)
	}
}

func (r *runner) checkNewPostBroadcast(c *framework.Context) {
	post := r.requirePost(c)
	claim := correlate.Claim{
		Action:    fmt.Sprintf("creation of post %d", post.ID),
		EventType: servicedef.EventTypeNewPost,
		Predicate: correlate.PostID(post.ID),
		Subjects:  r.subscriptions(),
	}
	r.evaluate(c, claim, func(c *framework.Context, v correlate.Verdict) {
		if !v.Matched() {
			c.SkipWithReason(fmt.Sprintf("no new_post event for post %d was received; the backend may"+
				" withhold events from the user who caused them", post.ID))
		}
		c.Debug("new_post received as event #%d", v.Record.Seq)
	})
}

func (r *runner) likePost(c *framework.Context) {
	post := r.requirePost(c)
	r.checkInterrupted(c)
	resp, err := r.client.Logging(c.Loggers()).Like(r.ctx, r.actor().session, post.ID)
	require.NoError(c, err, "%s could not like post %d", r.actor().name, post.ID)
	r.likes = &resp
	c.Debug("%s liked post %d; likes_count is now %d", r.actor().name, post.ID, resp.LikesCount)
}

func (r *runner) checkLikeDelivery(c *framework.Context) {
	post := r.requirePost(c)
	if r.likes == nil {
		c.SkipWithReason("the like action failed")
	}
	claim := correlate.Claim{
		Action:    fmt.Sprintf("%s's like of post %d", r.actor().name, post.ID),
		EventType: servicedef.EventTypePostLiked,
		Predicate: correlate.All(correlate.PostID(post.ID), correlate.LikesCount(r.likes.LikesCount)),
		Subjects:  r.subscriptions(),
	}
	r.evaluate(c, claim, requireMatched)
}

func (r *runner) commentOnPost(c *framework.Context) {
	post := r.requirePost(c)
	r.checkInterrupted(c)
	resp, err := r.client.Logging(c.Loggers()).Comment(r.ctx, r.actor().session, post.ID,
		"Real-time comment from "+r.actor().name)
	require.NoError(c, err, "%s could not comment on post %d", r.actor().name, post.ID)
	r.comments = &resp
	c.Debug("%s commented on post %d; comments_count is now %d", r.actor().name, post.ID, resp.CommentsCount)
}

func (r *runner) checkCommentDelivery(c *framework.Context) {
	post := r.requirePost(c)
	if r.comments == nil {
		c.SkipWithReason("the comment action failed")
	}
	claim := correlate.Claim{
		Action:    fmt.Sprintf("%s's comment on post %d", r.actor().name, post.ID),
		EventType: servicedef.EventTypePostCommented,
		Predicate: correlate.All(correlate.PostID(post.ID), correlate.CommentsCount(r.comments.CommentsCount)),
		Subjects:  r.subscriptions(),
	}
	r.evaluate(c, claim, requireMatched)
}

func requireMatched(c *framework.Context, v correlate.Verdict) {
	if !v.Matched() {
		c.Errorf("%w", v.Err())
		return
	}
	c.Debug("matched event #%d after %s", v.Record.Seq, v.Elapsed)
}

func (r *runner) checkDuplicates(c *framework.Context) {
	post := r.requirePost(c)
	types := []servicedef.EventType{servicedef.EventTypePostLiked}
	if r.comments != nil {
		types = append(types, servicedef.EventTypePostCommented)
	}
	if r.cfg.Mode == correlate.ModeAwait {
		// await mode stops at the first match, so give late copies one settle window to arrive
		c.Debug("waiting %s for late duplicates", r.cfg.Settle)
		select {
		case <-time.After(r.cfg.Settle):
		case <-r.ctx.Done():
		}
		r.checkInterrupted(c)
	}
	for _, u := range r.users {
		c.Run(u.name, func(c *framework.Context) {
			var duplicated []string
			records := u.conn.Events()
			for _, t := range types {
				_, matches, _ := correlate.Scan(records, t, correlate.PostID(post.ID))
				c.Debug("%d %s events for post %d", matches, t, post.ID)
				if matches > 1 {
					duplicated = append(duplicated, fmt.Sprintf("%d %s events", matches, t))
				}
			}
			if len(duplicated) == 0 {
				return
			}
			debugRecords(c, u)
			msg := fmt.Sprintf("%s received %s for post %d", u.name, strings.Join(duplicated, " and "), post.ID)
			if r.cfg.Duplicates == DuplicatesTolerate {
				c.SkipWithReason(msg + "; duplicates are tolerated")
			}
			c.Errorf("%s", msg)
		})
	}
}

func (r *runner) checkFeeds(c *framework.Context) {
	post := r.requirePost(c)
	if r.likes == nil {
		c.SkipWithReason("the like action failed")
	}
	expected := r.likes.LikesCount
	client := r.client.Logging(c.Loggers())
	for _, u := range r.users {
		c.Run(u.name, func(c *framework.Context) {
			r.checkInterrupted(c)
			feed, err := client.GetFeed(r.ctx, u.session, r.cfg.FeedLimit)
			require.NoError(c, err, "%s could not fetch the feed", u.name)
			fp, ok := feed.FindPost(post.ID)
			require.True(c, ok, "post %d is not on the first page of %s's feed (%d posts)",
				post.ID, u.name, len(feed.Posts))
			assert.Equal(c, expected, fp.LikesCount,
				"likes_count of post %d in %s's feed does not match the like response", post.ID, u.name)
		})
	}
}

func (r *runner) tearDown(c *framework.Context) {
	for _, u := range r.users {
		if u.conn == nil {
			continue
		}
		before := u.conn.State()
		assert.NoError(c, u.conn.Close(), "first close of %s's stream", u.name)
		assert.NoError(c, u.conn.Close(), "second close of %s's stream", u.name)
		after := u.conn.State()
		if before == eventstream.StateFailed {
			assert.Equal(c, eventstream.StateFailed, after, "%s's failed stream changed state on close", u.name)
		} else {
			assert.Equal(c, eventstream.StateClosed, after, "%s's stream is not closed", u.name)
		}
		c.Debug("%s's stream closed with %d events received", u.name, len(u.conn.Events()))
	}
}

func (r *runner) closeConnections() {
	for _, u := range r.users {
		if u.conn != nil {
			_ = u.conn.Close()
		}
	}
}
