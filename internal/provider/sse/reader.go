// Package sse reads the data lines of a Server-Sent Events body.
package sse

import (
	"bufio"
	"bytes"
	"io"
)

// MaxLineBytes caps a single line of the body. Longer lines fail the read
// with bufio.ErrTooLong.
const MaxLineBytes = 1 << 20

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// Reader yields the payload of each data line. It is not safe for
// concurrent use.
type Reader struct {
	scanner *bufio.Scanner
	done    bool
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	return &Reader{scanner: scanner}
}

// Next returns the next data payload with surrounding whitespace removed.
// Blank lines and non-data fields are skipped. It returns io.EOF at the end
// of the body or once a [DONE] payload has been seen; nothing after [DONE]
// is read.
func (s *Reader) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		line := bytes.TrimRight(s.scanner.Bytes(), "\r")
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(line[len(dataPrefix):])
		if bytes.Equal(payload, doneMarker) {
			s.done = true
			return nil, io.EOF
		}
		if len(payload) > 0 {
			return bytes.Clone(payload), nil
		}
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
