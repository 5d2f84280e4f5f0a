package eventstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sync"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/rodolfodpk/instagrano-realtime-tests/servicedef"
)

// DefaultConnectTimeout is how long Connect waits for the stream to open if Config.ConnectTimeout
// is not set.
const DefaultConnectTimeout = time.Second * 10

var (
	// ErrConnectTimeout means the stream did not open within the connect timeout.
	ErrConnectTimeout = errors.New("timed out waiting for event stream to open")

	// ErrClosed is returned by Connect or Await on a connection that was explicitly closed.
	ErrClosed = errors.New("event stream connection was closed")

	// ErrStreamEnded means the server ended an open stream.
	ErrStreamEnded = errors.New("event stream was ended by the server")
)

// StatusError means the stream request got a response that was not an event stream.
type StatusError struct {
	StatusCode  int
	ContentType string
	Body        string
}

func (e *StatusError) Error() string {
	if e.StatusCode != http.StatusOK {
		return fmt.Sprintf("event stream request returned HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("event stream response had content type %q, expected text/event-stream", e.ContentType)
}

type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateOpen:
		return "Open"
	case StateClosed:
		return "Closed"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Config struct {
	// URL is the full stream URL, including the token query parameter.
	URL string

	// Owner identifies the simulated user in log output.
	Owner string

	ConnectTimeout time.Duration

	// HTTPClient must not have an overall Timeout, since the stream stays open indefinitely.
	// Defaults to a client with no timeout.
	HTTPClient *http.Client

	Loggers ldlog.Loggers
}

// Connection is one user's subscription to the event stream. It is created in the Connecting
// state; Connect opens it, and from then on a goroutine owned by the Connection reads frames
// and appends them to the connection's log until the stream fails or Close is called.
type Connection struct {
	cfg       Config
	events    *eventLog
	state     State
	err       error
	cancel    context.CancelFunc
	done      chan struct{}
	started   bool
	closeOnce sync.Once
	lock      sync.Mutex
}

func New(cfg Config) *Connection {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Connection{
		cfg:    cfg,
		events: newEventLog(),
		state:  StateConnecting,
		done:   make(chan struct{}),
	}
}

// Connect starts the stream request and waits until the server responds with an event stream,
// the connect timeout elapses, or ctx is done. It can only be called once.
//
// The context only bounds the wait: once open, the stream lives until Close is called or the
// server ends it.
func (c *Connection) Connect(ctx context.Context) error {
	c.lock.Lock()
	if c.started {
		state := c.state
		c.lock.Unlock()
		if state == StateClosed {
			return ErrClosed
		}
		return errors.New("event stream connection was already started")
	}
	c.started = true
	streamCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.lock.Unlock()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		cancel()
		c.fail(err)
		close(c.done)
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	c.cfg.Loggers.Debugf("[%s] connecting to %s", c.cfg.Owner, redactedURL(c.cfg.URL))

	type result struct {
		resp *http.Response
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		resp, err := c.cfg.HTTPClient.Do(req)
		resultCh <- result{resp, err}
	}()

	deadline := time.NewTimer(c.cfg.ConnectTimeout)
	defer deadline.Stop()

	var r result
	select {
	case r = <-resultCh:
	case <-deadline.C:
		r.err = ErrConnectTimeout
	case <-ctx.Done():
		r.err = ctx.Err()
	}
	if r.err == nil {
		r.err = checkStreamResponse(r.resp)
	}
	if r.err != nil {
		cancel()
		if r.resp == nil {
			// the request goroutine may still deliver a response after cancellation
			go func() {
				if late := <-resultCh; late.resp != nil {
					_ = late.resp.Body.Close()
				}
			}()
		}
		c.cfg.Loggers.Warnf("[%s] stream connection failed: %s", c.cfg.Owner, sanitizeError(r.err))
		if c.fail(r.err) == StateClosed {
			r.err = ErrClosed
		}
		close(c.done)
		return r.err
	}

	c.lock.Lock()
	if c.state == StateClosed {
		c.lock.Unlock()
		_ = r.resp.Body.Close()
		close(c.done)
		return ErrClosed
	}
	c.state = StateOpen
	c.lock.Unlock()
	c.events.notify()
	c.cfg.Loggers.Debugf("[%s] stream is open", c.cfg.Owner)

	go c.readLoop(r.resp.Body)
	return nil
}

func checkStreamResponse(resp *http.Response) error {
	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if resp.StatusCode == http.StatusOK && mediaType == "text/event-stream" {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{StatusCode: resp.StatusCode, ContentType: contentType, Body: string(body)}
}

func (c *Connection) readLoop(body io.ReadCloser) {
	defer close(c.done)
	defer func() { _ = body.Close() }()

	decoder := newFrameDecoder(body)
	for {
		f, err := decoder.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrStreamEnded
			}
			if c.fail(err) == StateFailed {
				c.cfg.Loggers.Warnf("[%s] stream failed: %s", c.cfg.Owner, sanitizeError(err))
			}
			return
		}
		if f.isComment {
			c.cfg.Loggers.Debugf("[%s] comment: %s", c.cfg.Owner, f.comment)
			continue
		}
		r := c.events.append(decodeRecord(f, time.Now()))
		if m, ok := r.Event.(MalformedEvent); ok {
			c.cfg.Loggers.Warnf("[%s] received malformed %s event (%s): %s", c.cfg.Owner, r.Name, m.Err, r.Data)
		} else {
			c.cfg.Loggers.Debugf("[%s] received %s", c.cfg.Owner, r)
		}
	}
}

// fail moves the connection to Failed unless it was already closed, and returns the
// resulting state.
func (c *Connection) fail(err error) State {
	c.lock.Lock()
	if c.state != StateClosed && c.state != StateFailed {
		c.state = StateFailed
		c.err = err
	}
	state := c.state
	c.lock.Unlock()
	c.events.notify()
	return state
}

// Close ends the stream and waits for the receive goroutine to exit. It is safe to call more
// than once and always returns nil. A Failed connection stays Failed.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.lock.Lock()
		started := c.started
		c.started = true
		if c.state != StateFailed {
			c.state = StateClosed
		}
		cancel := c.cancel
		c.lock.Unlock()
		c.events.notify()

		if cancel != nil {
			cancel()
		}
		if started {
			<-c.done
		} else {
			close(c.done)
		}
		c.cfg.Loggers.Debugf("[%s] stream closed", c.cfg.Owner)
	})
	return nil
}

func (c *Connection) Owner() string {
	return c.cfg.Owner
}

func (c *Connection) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// Err returns the reason the connection failed, or nil if it has not failed.
func (c *Connection) Err() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.err
}

// Done is closed when the connection is no longer receiving: the receive goroutine has exited,
// or Connect failed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Events returns a copy of every record received so far, in arrival order.
func (c *Connection) Events() []Record {
	return c.events.snapshot()
}

// EventsOfType returns a copy of the records of one type received so far. The result is empty,
// not nil, if there are none.
func (c *Connection) EventsOfType(t servicedef.EventType) []Record {
	return FilterByType(c.events.snapshot(), t)
}

// Await blocks until a record satisfying match has been received, and returns the first such
// record. Records received before the call are considered too. It returns ctx.Err() if the
// context ends first, or the connection's failure if it stops receiving with no match.
func (c *Connection) Await(ctx context.Context, match func(Record) bool) (Record, error) {
	seen := 0
	for {
		records, changed := c.events.since(seen)
		if r, ok := firstMatch(records, match); ok {
			return r, nil
		}
		seen += len(records)

		// the state is read after the records; a terminal state read here is always followed by
		// notify, so either changed is already closed or the state is final
		var err error
		switch c.State() {
		case StateFailed:
			err = c.Err()
		case StateClosed:
			err = ErrClosed
		}
		if err != nil {
			// records are appended before the state becomes terminal
			rest, _ := c.events.since(seen)
			if r, ok := firstMatch(rest, match); ok {
				return r, nil
			}
			return Record{}, err
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return Record{}, ctx.Err()
		}
	}
}

func firstMatch(records []Record, match func(Record) bool) (Record, bool) {
	for _, r := range records {
		if match(r) {
			return r, true
		}
	}
	return Record{}, false
}

// redactedURL hides the token query parameter, so that stream URLs can be logged.
func redactedURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(invalid URL)"
	}
	q := u.Query()
	for k := range q {
		q.Set(k, "xxx")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// sanitizeError strips the request URL that net/http puts in transport errors, since it
// contains the token.
func sanitizeError(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Sprintf("%s %s: %s", urlErr.Op, redactedURL(urlErr.URL), urlErr.Err)
	}
	return err.Error()
}
