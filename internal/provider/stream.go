package provider

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"promptpilot/internal/models"
	"promptpilot/internal/provider/sse"
)

// StreamErrorPrefix starts the text of every failed fragment.
const StreamErrorPrefix = "Error in streaming: "

// DecodeFunc extracts the text delta from one SSE payload. Returning false
// skips the payload.
type DecodeFunc func(payload []byte) (string, bool)

// OpenFunc performs the upstream request and returns its body.
type OpenFunc func() (io.ReadCloser, error)

// HTTPStream adapts an SSE response body to models.Stream. The request is
// sent on the first call to Next. Next must not be called concurrently;
// Close may be called from any goroutine.
type HTTPStream struct {
	name   string
	open   OpenFunc
	decode DecodeFunc

	mu     sync.Mutex
	body   io.ReadCloser
	reader *sse.Reader
	done   bool
}

// NewHTTPStream returns a lazily opened stream.
func NewHTTPStream(name string, open OpenFunc, decode DecodeFunc) *HTTPStream {
	return &HTTPStream{name: name, open: open, decode: decode}
}

func (s *HTTPStream) Next() (models.Fragment, error) {
	reader, err := s.ensureOpen()
	if err != nil {
		return s.fail(err), nil
	}
	if reader == nil {
		return models.Fragment{}, io.EOF
	}

	for {
		payload, err := reader.Next()
		if errors.Is(err, io.EOF) {
			s.Close()
			return models.Fragment{}, io.EOF
		}
		if err != nil {
			if s.isDone() {
				return models.Fragment{}, io.EOF
			}
			return s.fail(err), nil
		}

		text, ok := s.decode(payload)
		if !ok || text == "" {
			continue
		}
		return models.Fragment{Text: text}, nil
	}
}

// Close releases the upstream connection. It is idempotent.
func (s *HTTPStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.done = true
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	return err
}

func (s *HTTPStream) ensureOpen() (*sse.Reader, error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil, nil
	}
	if s.reader != nil {
		r := s.reader
		s.mu.Unlock()
		return r, nil
	}
	s.mu.Unlock()

	body, err := s.open()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		body.Close()
		return nil, nil
	}
	s.body = body
	s.reader = sse.NewReader(body)
	return s.reader, nil
}

func (s *HTTPStream) isDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *HTTPStream) fail(err error) models.Fragment {
	slog.Warn("stream failed", "provider", s.name, "err", err)
	s.Close()
	return models.Fragment{Text: StreamErrorPrefix + err.Error(), Failed: true}
}
