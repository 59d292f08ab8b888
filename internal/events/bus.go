// Package events carries job-lifecycle notifications from background workers
// to whatever front end is listening, without binding to a UI toolkit.
package events

import (
	"sync"
	"time"
)

// Type identifies one kind of lifecycle event.
type Type string

const (
	CompressionStarted   Type = "compression_started"
	CompressionCompleted Type = "compression_completed"
	CompressionFailed    Type = "compression_failed"
	TrimApplied          Type = "trim_applied"
)

// Event is one notification.
type Event struct {
	Type        Type      `json:"type"`
	RecordingID string    `json:"recording_id,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	FileCount   int       `json:"file_count,omitempty"`
	At          time.Time `json:"at"`
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(Event)

// Bus is a small callback registry.
type Bus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	next     int
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: map[int]Handler{}}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers e to every subscribed handler. A zero At is stamped with
// the current time.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}
