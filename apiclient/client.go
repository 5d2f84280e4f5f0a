package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"
)

const defaultRequestTimeout = time.Second * 30

// Client performs synchronous calls against the backend. It never retries: every method makes
// exactly one request, and a failure is returned to the caller as a *RequestError.
type Client struct {
	baseURL    string
	httpClient *http.Client
	loggers    ldlog.Loggers
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client, which has a 30-second timeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithLoggers(loggers ldlog.Loggers) Option {
	return func(c *Client) { c.loggers = loggers }
}

func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		loggers:    ldlog.NewDisabledLoggers(),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Logging returns a copy of the client that logs to the given loggers, so that the requests
// made for one check show up in that check's debug output.
func (c *Client) Logging(loggers ldlog.Loggers) *Client {
	c1 := *c
	c1.loggers = loggers
	return &c1
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type call struct {
	op          string
	method      string
	path        string
	query       url.Values
	session     *Session
	body        []byte
	contentType string
}

func jsonCall(op, method, path string, session *Session, params interface{}) (call, error) {
	cl := call{op: op, method: method, path: path, session: session}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return cl, err
		}
		cl.body = data
		cl.contentType = "application/json"
	}
	return cl, nil
}

func (c *Client) send(ctx context.Context, cl call, out interface{}) error {
	u := c.baseURL + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}
	var body io.Reader
	if cl.body != nil {
		body = bytes.NewReader(cl.body)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
	if err != nil {
		return &RequestError{Op: cl.op, Method: cl.method, URL: u, Kind: ErrTransport, Err: err}
	}
	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if cl.session != nil {
		req.Header.Set("Authorization", "Bearer "+cl.session.Token)
	}

	c.loggers.Debugf("%s: %s %s", cl.op, cl.method, u)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Op: cl.op, Method: cl.method, URL: u, Kind: ErrTransport, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RequestError{Op: cl.op, Method: cl.method, URL: u, StatusCode: resp.StatusCode,
			Kind: ErrTransport, Err: fmt.Errorf("error reading response body: %w", err)}
	}
	c.loggers.Debugf("%s: HTTP %d: %s", cl.op, resp.StatusCode, string(data))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RequestError{Op: cl.op, Method: cl.method, URL: u, StatusCode: resp.StatusCode,
			Body: string(data), Kind: KindForStatus(resp.StatusCode)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RequestError{Op: cl.op, Method: cl.method, URL: u, StatusCode: resp.StatusCode,
			Body: string(data), Kind: ErrServer, Err: fmt.Errorf("malformed response body: %w", err)}
	}
	return nil
}
