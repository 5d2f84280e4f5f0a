package eventstream

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

func decodeAll(t *testing.T, r io.Reader) []frame {
	d := newFrameDecoder(r)
	var ret []frame
	for {
		f, err := d.next()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			return ret
		}
		ret = append(ret, f)
	}
}

func TestFrameDecoding(t *testing.T) {
	for _, p := range []struct {
		name     string
		input    string
		expected []frame
	}{
		{
			name:     "unnamed event",
			input:    "data: hello\n\n",
			expected: []frame{{name: "message", data: "hello"}},
		},
		{
			name:     "named event",
			input:    "event: post_liked\ndata: {}\n\n",
			expected: []frame{{name: "post_liked", data: "{}"}},
		},
		{
			name:     "multi-line data",
			input:    "data: a\ndata: b\ndata:\ndata: c\n\n",
			expected: []frame{{name: "message", data: "a\nb\n\nc"}},
		},
		{
			name:     "only one leading space is removed",
			input:    "data:  x\ndata:y\n\n",
			expected: []frame{{name: "message", data: " x\ny"}},
		},
		{
			name:     "CRLF line endings",
			input:    "event: a\r\ndata: 1\r\n\r\nevent: b\r\ndata: 2\r\n\r\n",
			expected: []frame{{name: "a", data: "1"}, {name: "b", data: "2"}},
		},
		{
			name:     "CR line endings",
			input:    "event: a\rdata: 1\r\rdata: 2\r\r",
			expected: []frame{{name: "a", data: "1"}, {name: "message", data: "2"}},
		},
		{
			name:  "comments",
			input: ":hi\n: there\ndata: x\n\n",
			expected: []frame{
				{isComment: true, comment: "hi"},
				{isComment: true, comment: "there"},
				{name: "message", data: "x"},
			},
		},
		{
			name:     "event with no data is not dispatched",
			input:    "event: heartbeat\n\ndata: x\n\n",
			expected: []frame{{name: "message", data: "x"}},
		},
		{
			name:     "id persists across events",
			input:    "id: 1\ndata: a\n\ndata: b\n\nid\ndata: c\n\n",
			expected: []frame{{name: "message", data: "a", id: "1"}, {name: "message", data: "b", id: "1"}, {name: "message", data: "c"}},
		},
		{
			name:     "id with NUL is ignored",
			input:    "id: 1\ndata: a\n\nid: x\x00y\ndata: b\n\n",
			expected: []frame{{name: "message", data: "a", id: "1"}, {name: "message", data: "b", id: "1"}},
		},
		{
			name:  "retry",
			input: "retry: 3000\ndata: a\n\nretry: nope\ndata: b\n\n",
			expected: []frame{
				{name: "message", data: "a", retry: ldvalue.NewOptionalInt(3000)},
				{name: "message", data: "b"},
			},
		},
		{
			name:     "unknown fields are ignored",
			input:    "foo: bar\ndata: a\n\n",
			expected: []frame{{name: "message", data: "a"}},
		},
		{
			name:     "leading BOM is stripped",
			input:    byteOrderMark + "data: a\n\n",
			expected: []frame{{name: "message", data: "a"}},
		},
		{
			name:     "incomplete event at end is discarded",
			input:    "data: a\n\ndata: b\n",
			expected: []frame{{name: "message", data: "a"}},
		},
	} {
		t.Run(p.name, func(t *testing.T) {
			assert.Equal(t, p.expected, decodeAll(t, strings.NewReader(p.input)))
		})
		t.Run(p.name+", one byte at a time", func(t *testing.T) {
			assert.Equal(t, p.expected, decodeAll(t, iotest.OneByteReader(strings.NewReader(p.input))))
		})
	}
}

func TestSecondBOMIsNotStripped(t *testing.T) {
	frames := decodeAll(t, strings.NewReader(byteOrderMark+"data: a\n\n"+byteOrderMark+"data: b\n\n"))
	require.Len(t, frames, 1)
	assert.Equal(t, "a", frames[0].data)
}
