package eventstream

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/rodolfodpk/instagrano-realtime-tests/servicedef"
)

const likedFrameData = `{"type":"post_liked","post_id":7,"triggered_by_user_id":2,` +
	`"data":{"likes_count":1,"comments_count":0},"timestamp":1700000000}`

func openConnection(t *testing.T, m *mockStream) *Connection {
	c := New(Config{URL: m.URL(), Owner: "user1", ConnectTimeout: time.Second * 5, Loggers: ldlog.NewDisabledLoggers()})
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConnectOpensStream(t *testing.T) {
	m := newMockStream(t)
	c := New(Config{URL: m.URL(), Owner: "user1"})
	assert.Equal(t, StateConnecting, c.State())

	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	assert.Equal(t, StateOpen, c.State())
	req := m.awaitRequest(t)
	assert.Equal(t, "secret-token", req.URL.Query().Get(servicedef.StreamTokenParam))
	assert.Equal(t, "text/event-stream", req.Header.Get("Accept"))
}

func TestConnectFailsOnErrorStatus(t *testing.T) {
	handler := httphelpers.HandlerWithResponse(401, http.Header{"Content-Type": {"application/json"}},
		[]byte(`{"error":"invalid token"}`))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		c := New(Config{URL: server.URL + "/stream?token=x"})
		err := c.Connect(context.Background())
		var se *StatusError
		require.True(t, errors.As(err, &se), "unexpected error: %s", err)
		assert.Equal(t, 401, se.StatusCode)
		assert.Contains(t, se.Body, "invalid token")
		assert.Equal(t, StateFailed, c.State())
		assert.Equal(t, err, c.Err())
		<-c.Done()
	})
}

func TestConnectFailsOnWrongContentType(t *testing.T) {
	handler := httphelpers.HandlerWithResponse(200, http.Header{"Content-Type": {"text/plain"}}, []byte("hello"))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		c := New(Config{URL: server.URL})
		err := c.Connect(context.Background())
		var se *StatusError
		require.True(t, errors.As(err, &se), "unexpected error: %s", err)
		assert.Equal(t, "text/plain", se.ContentType)
		assert.Equal(t, StateFailed, c.State())
	})
}

func TestConnectFailsOnTransportError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	url := "http://" + listener.Addr().String() + "/stream"
	require.NoError(t, listener.Close())

	c := New(Config{URL: url})
	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, c.State())
	assert.NoError(t, c.Close())
	assert.Equal(t, StateFailed, c.State())
}

func TestConnectTimesOut(t *testing.T) {
	requestCanceled := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		close(requestCanceled)
	})
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		c := New(Config{URL: server.URL, ConnectTimeout: time.Millisecond * 200})
		start := time.Now()
		err := c.Connect(context.Background())
		assert.ErrorIs(t, err, ErrConnectTimeout)
		assert.Less(t, time.Since(start), time.Second*2)
		assert.Equal(t, StateFailed, c.State())

		select {
		case <-requestCanceled:
		case <-time.After(time.Second * 5):
			assert.Fail(t, "stream request was not canceled after connect timeout")
		}
	})
}

func TestConnectStopsWhenContextIsCanceled(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		c := New(Config{URL: server.URL})
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*100)
		defer cancel()
		err := c.Connect(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, StateFailed, c.State())
	})
}

func TestConnectCanOnlyBeCalledOnce(t *testing.T) {
	m := newMockStream(t)
	c := openConnection(t, m)
	assert.Error(t, c.Connect(context.Background()))
	assert.Equal(t, StateOpen, c.State())
}

func TestReceivesTypedEvents(t *testing.T) {
	m := newMockStream(t)
	c := openConnection(t, m)

	m.send(
		frameText("connected", `{"message":"Connected to event stream","user_id":1}`),
		frameText("post_liked", likedFrameData),
		frameText("", "just text"),
		frameText("story_posted", `{"id":1}`),
		frameText("post_commented", `{"type":"post_commented","post_id":`),
	)
	records := awaitRecords(t, c, 5)

	assert.Equal(t, []string{"connected", "post_liked", "message", "story_posted", "post_commented"}, TypeNames(records))
	for i, r := range records {
		assert.Equal(t, i+1, r.Seq)
		assert.False(t, r.ReceivedAt.IsZero())
	}

	connected, ok := records[0].Event.(ConnectedEvent)
	require.True(t, ok)
	assert.Equal(t, uint(1), connected.UserID)

	liked, ok := records[1].Event.(InteractionEvent)
	require.True(t, ok)
	assert.Equal(t, servicedef.EventTypePostLiked, liked.Type())
	assert.Equal(t, uint(7), liked.Header.PostID)
	assert.Equal(t, uint(2), liked.Header.TriggeredByUserID)
	assert.Equal(t, 1, liked.LikesCount)
	assert.Equal(t, 7, records[1].Payload.GetByKey("post_id").IntValue())

	assert.Equal(t, MessageEvent{Data: "just text"}, records[2].Event)

	assert.Equal(t, EventTypeUnrecognized, records[3].Type())
	assert.Equal(t, UnrecognizedEvent{Name: "story_posted", Data: `{"id":1}`}, records[3].Event)

	malformed, ok := records[4].Event.(MalformedEvent)
	require.True(t, ok)
	assert.Equal(t, servicedef.EventTypePostCommented, malformed.Type())
	assert.Error(t, malformed.Err)
}

func TestReceivesEventSplitAcrossChunks(t *testing.T) {
	m := newMockStream(t)
	c := openConnection(t, m)

	m.sendSplit(frameText("post_liked", likedFrameData), 5)
	records := awaitRecords(t, c, 1)
	assert.Equal(t, likedFrameData, records[0].Data)
	postID, ok := records[0].PostID()
	assert.True(t, ok)
	assert.Equal(t, uint(7), postID)
}

func TestEventsOfTypeReturnsEmptyForAbsentType(t *testing.T) {
	m := newMockStream(t)
	c := openConnection(t, m)

	m.send(frameText("post_liked", likedFrameData))
	awaitRecords(t, c, 1)

	deleted := c.EventsOfType(servicedef.EventTypePostDeleted)
	assert.NotNil(t, deleted)
	assert.Len(t, deleted, 0)
	assert.Len(t, c.EventsOfType(servicedef.EventTypePostLiked), 1)
}

func TestEventsReturnsCopy(t *testing.T) {
	m := newMockStream(t)
	c := openConnection(t, m)

	m.send(frameText("", "a"))
	records := awaitRecords(t, c, 1)
	records[0].Data = "changed"
	assert.Equal(t, "a", c.Events()[0].Data)
}

func TestAwaitReturnsEarlierRecord(t *testing.T) {
	m := newMockStream(t)
	c := openConnection(t, m)

	m.send(frameText("post_liked", likedFrameData))
	awaitRecords(t, c, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r, err := c.Await(ctx, func(r Record) bool { return r.Type() == servicedef.EventTypePostLiked })
	require.NoError(t, err)
	assert.Equal(t, 1, r.Seq)
}

func TestAwaitWakesUpOnNewRecord(t *testing.T) {
	m := newMockStream(t)
	c := openConnection(t, m)

	resultCh := make(chan Record, 1)
	go func() {
		r, err := c.Await(context.Background(), func(r Record) bool { return r.Data == "b" })
		if err == nil {
			resultCh <- r
		}
	}()

	m.send(frameText("", "a"))
	time.Sleep(time.Millisecond * 50)
	m.send(frameText("", "b"))

	select {
	case r := <-resultCh:
		assert.Equal(t, 2, r.Seq)
	case <-time.After(time.Second * 5):
		assert.Fail(t, "timed out waiting for Await")
	}
}

func TestAwaitTimesOutWithContext(t *testing.T) {
	m := newMockStream(t)
	c := openConnection(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*100)
	defer cancel()
	_, err := c.Await(ctx, func(Record) bool { return true })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwaitReturnsWhenConnectionFailsRightAfterRecord(t *testing.T) {
	for i := 0; i < 200; i++ {
		c := New(Config{URL: "http://localhost", Loggers: ldlog.NewDisabledLoggers()})
		c.lock.Lock()
		c.state = StateOpen
		c.lock.Unlock()

		errCh := make(chan error, 1)
		go func() {
			_, err := c.Await(context.Background(), func(r Record) bool { return r.Data == "never" })
			errCh <- err
		}()
		c.events.append(Record{Data: "a"})
		c.fail(ErrStreamEnded)

		select {
		case err := <-errCh:
			require.ErrorIs(t, err, ErrStreamEnded)
		case <-time.After(time.Second):
			require.Fail(t, "Await did not return after the connection failed", "iteration %d", i)
		}
	}
}

func TestAwaitMatchesRecordAppendedJustBeforeFailure(t *testing.T) {
	c := New(Config{URL: "http://localhost", Loggers: ldlog.NewDisabledLoggers()})
	c.events.append(Record{Data: "a"})
	c.fail(ErrStreamEnded)

	r, err := c.Await(context.Background(), func(r Record) bool { return r.Data == "a" })
	require.NoError(t, err)
	assert.Equal(t, 1, r.Seq)
}

func TestServerEndingStreamFailsConnection(t *testing.T) {
	m := newMockStream(t)
	c := openConnection(t, m)

	m.send(frameText("", "a"))
	awaitRecords(t, c, 1)
	m.endStream()

	select {
	case <-c.Done():
	case <-time.After(time.Second * 5):
		require.Fail(t, "timed out waiting for receive loop to exit")
	}
	assert.Equal(t, StateFailed, c.State())
	assert.ErrorIs(t, c.Err(), ErrStreamEnded)

	_, err := c.Await(context.Background(), func(r Record) bool { return r.Data == "never" })
	assert.ErrorIs(t, err, ErrStreamEnded)

	assert.NoError(t, c.Close())
	assert.Equal(t, StateFailed, c.State())
	assert.Len(t, c.Events(), 1)
}

func TestCloseTwiceIsNoOp(t *testing.T) {
	m := newMockStream(t)
	c := openConnection(t, m)
	req := m.awaitRequest(t)

	assert.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
	assert.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
	assert.NoError(t, c.Err())

	select {
	case <-req.Context().Done():
	case <-time.After(time.Second * 5):
		assert.Fail(t, "server did not see the stream request end")
	}

	_, err := c.Await(context.Background(), func(Record) bool { return false })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseBeforeConnect(t *testing.T) {
	c := New(Config{URL: "http://localhost"})
	assert.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
	<-c.Done()
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClosed)
}

func TestRedactedURLHidesToken(t *testing.T) {
	assert.Equal(t, "http://localhost:8080/api/events/stream?token=xxx",
		redactedURL("http://localhost:8080/api/events/stream?token=abc.def.ghi"))
}
