package models

import (
	"io"
	"sync"
)

// Fragment is one piece of streamed output. Failed marks a fragment that
// describes an upstream failure rather than model text.
type Fragment struct {
	Text   string
	Failed bool
}

// Stream is a finite, pull-based sequence of fragments.
//
// Next returns io.EOF once the sequence is exhausted. The consumer owns the
// stream: when it stops calling Next before io.EOF it must call Close, which
// releases the underlying connection. Close is idempotent.
type Stream interface {
	Next() (Fragment, error)
	Close() error
}

// SliceStream replays a fixed list of fragments.
type SliceStream struct {
	mu        sync.Mutex
	fragments []Fragment
	closed    bool
}

// NewSliceStream returns a stream over the given fragments.
func NewSliceStream(fragments ...Fragment) *SliceStream {
	return &SliceStream{fragments: fragments}
}

// FailedStream returns a stream yielding one failed fragment.
func FailedStream(text string) *SliceStream {
	return NewSliceStream(Fragment{Text: text, Failed: true})
}

func (s *SliceStream) Next() (Fragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.fragments) == 0 {
		return Fragment{}, io.EOF
	}
	f := s.fragments[0]
	s.fragments = s.fragments[1:]
	return f, nil
}

func (s *SliceStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.fragments = nil
	s.mu.Unlock()
	return nil
}

// Drain reads a stream to completion, closes it and returns the collected
// fragments.
func Drain(s Stream) ([]Fragment, error) {
	defer s.Close()

	var out []Fragment
	for {
		f, err := s.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}
