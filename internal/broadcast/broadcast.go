// Package broadcast fans live response events out to any number of
// subscribers with non-blocking, best-effort delivery. A slow subscriber
// loses messages; it never slows the publisher or its peers. That trade-off
// fits a live feed where the next delta supersedes a missed one.
package broadcast

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by [Broadcaster.Subscribe] once [Broadcaster.Close]
// has been called.
var ErrClosed = errors.New("broadcast: broadcaster is closed")

// DefaultBufferSize is the per-subscriber channel capacity when none is
// configured.
const DefaultBufferSize = 64

// MessageType tags a broadcast [Message].
type MessageType string

const (
	// TypeDelta carries one incremental fragment of generated text.
	TypeDelta MessageType = "delta"

	// TypeComplete marks a response as finished.
	TypeComplete MessageType = "complete"

	// TypeError relays a remote-reported application error.
	TypeError MessageType = "error"
)

// Message is one event delivered to every live subscriber. Its JSON shape is
// exactly what SSE clients receive.
type Message struct {
	Type       MessageType `json:"type"`
	ResponseID string      `json:"responseId,omitempty"`
	Text       string      `json:"text,omitempty"`
	Message    string      `json:"message,omitempty"`
}

// Delta builds the message for one text fragment of a response.
func Delta(responseID, text string) Message {
	return Message{Type: TypeDelta, ResponseID: responseID, Text: text}
}

// Complete builds the message marking a response as finished.
func Complete(responseID string) Message {
	return Message{Type: TypeComplete, ResponseID: responseID}
}

// Error builds the message relaying a remote error to subscribers.
func Error(message string) Message {
	return Message{Type: TypeError, Message: message}
}

// Broadcaster owns the registry mapping subscription identities to delivery
// channels. Registry mutations (subscribe, unsubscribe, close) are mutually
// exclusive; publishes take a read lock so they can run concurrently with
// each other.
type Broadcaster struct {
	bufSize int
	onDrop  func()

	mu     sync.RWMutex
	subs   map[uint64]chan Message
	nextID uint64
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// Option configures a [Broadcaster].
type Option func(*Broadcaster)

// WithBufferSize sets the per-subscriber channel capacity. Values below 1
// keep [DefaultBufferSize].
func WithBufferSize(n int) Option {
	return func(b *Broadcaster) {
		if n >= 1 {
			b.bufSize = n
		}
	}
}

// WithDropHook registers fn to run once per dropped message, in addition to
// the internal drop counter. Used to feed an external metric. fn must not
// block; it runs on the publishing goroutine.
func WithDropHook(fn func()) Option {
	return func(b *Broadcaster) {
		b.onDrop = fn
	}
}

// New returns a ready Broadcaster.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		bufSize: DefaultBufferSize,
		subs:    make(map[uint64]chan Message),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a fresh delivery channel and returns it together with
// an unsubscribe func that deregisters and closes that channel only. The
// unsubscribe func is safe to call more than once. After [Broadcaster.Close],
// Subscribe returns [ErrClosed].
func (b *Broadcaster) Subscribe() (<-chan Message, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, ErrClosed
	}

	id := b.nextID
	b.nextID++
	ch := make(chan Message, b.bufSize)
	b.subs[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe, nil
}

// Publish delivers msg to every registered channel without ever blocking:
// when a subscriber's buffer is full the message is dropped for that
// subscriber only. Publishing after Close is a no-op.
func (b *Broadcaster) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	b.published.Add(1)

	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			b.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop()
			}
		}
	}
}

// Len returns the number of live subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Stats reports lifetime publish and per-subscriber-drop counts.
func (b *Broadcaster) Stats() (published, dropped uint64) {
	return b.published.Load(), b.dropped.Load()
}

// Closed reports whether Close has been called.
func (b *Broadcaster) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Close deregisters and closes every subscriber channel and marks the
// broadcaster closed. Safe to call more than once.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
