package eventstream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// mockStream is an SSE endpoint that tests push raw chunks through. It accepts one connection
// at a time; the request is available on requests once the headers have been sent.
type mockStream struct {
	server   *httptest.Server
	requests chan *http.Request
	chunks   chan string
	end      chan struct{}
}

func newMockStream(t *testing.T) *mockStream {
	m := &mockStream{
		requests: make(chan *http.Request, 10),
		chunks:   make(chan string, 100),
		end:      make(chan struct{}),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serveHTTP))
	t.Cleanup(func() {
		select {
		case <-m.end:
		default:
			close(m.end)
		}
		m.server.Close()
	})
	return m
}

func (m *mockStream) URL() string {
	return m.server.URL + "/api/events/stream?token=secret-token"
}

func (m *mockStream) serveHTTP(w http.ResponseWriter, req *http.Request) {
	flusher := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	m.requests <- req

	for {
		select {
		case chunk := <-m.chunks:
			if _, err := w.Write([]byte(chunk)); err != nil {
				return
			}
			flusher.Flush()
		case <-m.end:
			return
		case <-req.Context().Done():
			return
		}
	}
}

func (m *mockStream) send(chunks ...string) {
	for _, c := range chunks {
		m.chunks <- c
	}
}

// sendSplit sends data in chunks of the given size, to exercise frames that span reads.
func (m *mockStream) sendSplit(data string, chunkSize int) {
	for pos := 0; pos < len(data); pos += chunkSize {
		end := pos + chunkSize
		if end > len(data) {
			end = len(data)
		}
		m.chunks <- data[pos:end]
	}
}

// endStream makes the server end the response, as a backend shutting down would.
func (m *mockStream) endStream() {
	close(m.end)
}

func (m *mockStream) awaitRequest(t *testing.T) *http.Request {
	select {
	case r := <-m.requests:
		return r
	case <-time.After(time.Second * 5):
		require.Fail(t, "timed out waiting for stream request")
		return nil
	}
}

func awaitRecords(t *testing.T, c *Connection, count int) []Record {
	require.Eventually(t, func() bool { return len(c.Events()) >= count }, time.Second*5, time.Millisecond*10,
		"expected %d records", count)
	return c.Events()
}

func frameText(name, data string) string {
	var sb strings.Builder
	if name != "" {
		sb.WriteString("event: " + name + "\n")
	}
	for _, line := range strings.Split(data, "\n") {
		sb.WriteString("data: " + line + "\n")
	}
	sb.WriteString("\n")
	return sb.String()
}
