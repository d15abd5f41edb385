package google

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Individual SSE lines are capped to keep a misbehaving server from
// forcing unbounded allocation.
const maxSSELineSize = 1 << 20

// sseScanner reads Server-Sent Events data payloads from a response body.
// Comments and non-data fields are skipped; consecutive data lines of one
// event are joined with newlines.
type sseScanner struct {
	scanner *bufio.Scanner
}

func newSSEScanner(r io.Reader) *sseScanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &sseScanner{scanner: scanner}
}

// Next returns the next event's data payload, or io.EOF when the stream is
// exhausted.
func (s *sseScanner) Next() (string, error) {
	var dataLines []string

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// Empty line terminates an event.
		if line == "" {
			if len(dataLines) > 0 {
				return strings.Join(dataLines, "\n"), nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		if data, ok := strings.CutPrefix(line, "data:"); ok {
			dataLines = append(dataLines, strings.TrimSpace(data))
			continue
		}

		// event:, id:, retry: fields are not used by this API.
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("sse read: %w", err)
	}

	if len(dataLines) > 0 {
		return strings.Join(dataLines, "\n"), nil
	}

	return "", io.EOF
}
