package chat

import (
	"context"
	"errors"
	"sync"
)

const eventBuffer = 64

// ErrClosed is reported by Err when a session ended without a specific cause.
var ErrClosed = errors.New("chat connection closed")

// sink is the delivery side of a transport's event channel. Protocol
// callbacks emit into it from the client's reader goroutine; finish closes
// the channel once, after any in-flight emit has returned.
type sink struct {
	ch   chan Event
	done chan struct{}

	mu     sync.RWMutex
	closed bool
	err    error
	once   sync.Once
}

func newSink() *sink {
	return &sink{
		ch:   make(chan Event, eventBuffer),
		done: make(chan struct{}),
	}
}

// emit blocks until the event is queued, the session ends or ctx is done.
func (s *sink) emit(ctx context.Context, ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	case <-s.done:
	case <-ctx.Done():
	}
}

// finish records the cause and closes the event channel.
func (s *sink) finish(err error) {
	s.once.Do(func() {
		if err == nil {
			err = ErrClosed
		}
		close(s.done)
		s.mu.Lock()
		s.err = err
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

func (s *sink) cause() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
