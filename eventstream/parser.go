package eventstream

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const byteOrderMark = "\xEF\xBB\xBF"

// frame is one dispatched SSE event, or a comment line.
type frame struct {
	comment   string
	isComment bool
	name      string
	data      string
	id        string
	retry     ldvalue.OptionalInt
}

// lineReader splits a stream into lines terminated by LF, CRLF, or a lone CR. A CR is treated
// as a terminator as soon as it is read, so that a CR-terminated event is dispatched without
// waiting for more input.
type lineReader struct {
	r      *bufio.Reader
	skipLF bool
}

func (l *lineReader) readLine() (string, error) {
	var sb strings.Builder
	for {
		b, err := l.r.ReadByte()
		if err != nil {
			return "", err
		}
		if l.skipLF {
			l.skipLF = false
			if b == '\n' {
				continue
			}
		}
		switch b {
		case '\n':
			return sb.String(), nil
		case '\r':
			l.skipLF = true
			return sb.String(), nil
		}
		sb.WriteByte(b)
	}
}

// frameDecoder implements the SSE interpretation rules: fields accumulate until a blank line,
// multiple data lines are joined with newlines, the last event ID persists across events, and
// a blank line with no data dispatches nothing.
type frameDecoder struct {
	lines   lineReader
	lastID  string
	started bool
	name    string
	data    strings.Builder
	hasData bool
	retry   ldvalue.OptionalInt
}

func newFrameDecoder(r io.Reader) *frameDecoder {
	return &frameDecoder{lines: lineReader{r: bufio.NewReaderSize(r, 64*1024)}}
}

// next returns the next event or comment. An incomplete event at the end of the input is
// discarded, and the underlying read error is returned.
func (d *frameDecoder) next() (frame, error) {
	for {
		line, err := d.lines.readLine()
		if err != nil {
			return frame{}, err
		}
		if !d.started {
			d.started = true
			line = strings.TrimPrefix(line, byteOrderMark)
		}

		if line == "" {
			if !d.hasData {
				d.name = ""
				continue
			}
			f := frame{
				name:  d.name,
				data:  strings.TrimSuffix(d.data.String(), "\n"),
				id:    d.lastID,
				retry: d.retry,
			}
			if f.name == "" {
				f.name = "message"
			}
			d.name = ""
			d.data.Reset()
			d.hasData = false
			d.retry = ldvalue.OptionalInt{}
			return f, nil
		}

		if strings.HasPrefix(line, ":") {
			return frame{isComment: true, comment: strings.TrimPrefix(line[1:], " ")}, nil
		}

		field, value := line, ""
		if colon := strings.IndexByte(line, ':'); colon >= 0 {
			field, value = line[:colon], strings.TrimPrefix(line[colon+1:], " ")
		}
		switch field {
		case "event":
			d.name = value
		case "data":
			d.data.WriteString(value)
			d.data.WriteByte('\n')
			d.hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				d.lastID = value
			}
		case "retry":
			if n, err := strconv.Atoi(value); err == nil && n >= 0 {
				d.retry = ldvalue.NewOptionalInt(n)
			}
		}
	}
}
