package relay

import (
	"bufio"
	"io"
	"strings"

	"github.com/juju/errors"
)

// MaxSSELineSize bounds a single SSE line.
const MaxSSELineSize = 1 * 1024 * 1024

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

/**
 * SSEScanner yields the payload of every "data: " line of an event stream.
 * Each line is one payload, lines of other fields and comments are skipped.
 * Next returns io.EOF on the [DONE] sentinel or when the stream ends.
 */
type SSEScanner struct {
	scanner *bufio.Scanner
}

func NewSSEScanner(reader io.Reader) *SSEScanner {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxSSELineSize)
	return &SSEScanner{scanner: scanner}
}

func (s *SSEScanner) Next() (string, error) {
	for s.scanner.Scan() {
		line := strings.TrimSuffix(s.scanner.Text(), "\r")
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimPrefix(line, dataPrefix)
		if payload == doneSentinel {
			return "", io.EOF
		}
		return payload, nil
	}

	if err := s.scanner.Err(); err != nil {
		return "", errors.Annotatef(err, "scan event stream")
	}
	return "", io.EOF
}
