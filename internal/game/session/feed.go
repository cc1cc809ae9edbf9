// Package session runs live battles keyed by an opaque identifier. Callers
// poll a session to advance it to the wall clock and read new segments.
package session

import (
	"fmt"
	"sync"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
)

// Feed delivers closed segments of one session to a watcher over a
// buffered channel.
type Feed struct {
	id       string
	segments chan combat.Segment
	mu       sync.Mutex
	closed   bool
}

// NewFeed creates a Feed for session id.
//
// Postcondition: Returns a Feed with an open channel of bufferSize (64 when
// bufferSize <= 0).
func NewFeed(id string, bufferSize int) *Feed {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Feed{
		id:       id,
		segments: make(chan combat.Segment, bufferSize),
	}
}

// ID returns the session identifier.
func (f *Feed) ID() string {
	return f.id
}

// Push enqueues seg without blocking.
//
// Postcondition: seg is enqueued, or an error is returned if the feed is
// closed or its buffer is full.
func (f *Feed) Push(seg combat.Segment) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("feed %s is closed", f.id)
	}
	select {
	case f.segments <- seg:
		return nil
	default:
		return fmt.Errorf("feed %s segment buffer full", f.id)
	}
}

// Segments returns the read-only segment channel. It is closed when the
// session stops or the watcher falls behind.
func (f *Feed) Segments() <-chan combat.Segment {
	return f.segments
}

// Close closes the segment channel. Calling Close twice is a no-op.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.segments)
	}
	return nil
}

// IsClosed reports whether the feed has been closed.
func (f *Feed) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
