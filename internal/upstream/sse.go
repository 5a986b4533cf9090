package upstream

import (
	"bufio"
	"io"
	"strings"
)

// DoneSentinel is the data payload that ends an OpenAI-style stream.
const DoneSentinel = "[DONE]"

// Frame is one blank-line delimited server-sent event.
type Frame struct {
	Event string
	Data  string
}

// FrameReader splits an event stream into frames. Multiple data lines in a
// frame are joined with "\n"; comment lines are ignored.
type FrameReader struct {
	r     *bufio.Reader
	event string
	data  []string
}

// NewFrameReader wraps r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next frame, or io.EOF once the stream ends. A trailing
// frame without a terminating blank line is still returned.
func (f *FrameReader) Next() (Frame, error) {
	for {
		line, err := f.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return Frame{}, err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if fr, ok := f.flush(); ok {
				return fr, nil
			}
		} else {
			f.consume(line)
		}

		if err == io.EOF {
			if fr, ok := f.flush(); ok {
				return fr, nil
			}
			return Frame{}, io.EOF
		}
	}
}

func (f *FrameReader) consume(line string) {
	if strings.HasPrefix(line, ":") {
		return
	}
	field, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")
	switch field {
	case "event":
		f.event = value
	case "data":
		f.data = append(f.data, value)
	}
}

func (f *FrameReader) flush() (Frame, bool) {
	if f.event == "" && len(f.data) == 0 {
		return Frame{}, false
	}
	fr := Frame{Event: f.event, Data: strings.Join(f.data, "\n")}
	f.event = ""
	f.data = f.data[:0]
	return fr, true
}
