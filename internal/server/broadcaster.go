package server

import (
	"sync"
)

// defaultSubscriberQueue is the per-subscriber line buffer. A console viewer
// that falls further behind than this loses its oldest lines, never the
// producer's throughput.
const defaultSubscriberQueue = 256

// Broadcaster fans console output out to any number of subscribers. Each
// subscriber owns an independent bounded queue; a slow subscriber drops its
// own oldest lines and never backpressures the process readers. There is no
// history: a subscriber only sees lines published after it subscribed.
type Broadcaster struct {
	mu        sync.RWMutex
	subs      map[*Subscription]struct{}
	queueSize int
	closed    bool
}

// Subscription is one consumer's cursor into an instance's output stream.
type Subscription struct {
	ch chan string
	b  *Broadcaster
}

// NewBroadcaster creates a broadcaster with the given per-subscriber queue
// size (0 means the default).
func NewBroadcaster(queueSize int) *Broadcaster {
	if queueSize <= 0 {
		queueSize = defaultSubscriberQueue
	}
	return &Broadcaster{
		subs:      make(map[*Subscription]struct{}),
		queueSize: queueSize,
	}
}

// Subscribe registers a new output consumer. The caller must Close the
// subscription when done.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{
		ch: make(chan string, b.queueSize),
		b:  b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers a line to every current subscriber without blocking. If a
// subscriber's queue is full its oldest line is discarded to make room.
func (b *Broadcaster) Publish(line string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for sub := range b.subs {
		select {
		case sub.ch <- line:
		default:
			// Queue full: evict the oldest entry for this subscriber only.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- line:
			default:
			}
		}
	}
}

// Close shuts down the broadcaster and closes every subscriber channel.
// Called when the process handle is discarded.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Lines returns the subscriber's receive channel. The channel is closed when
// the subscription is closed or the broadcaster shuts down.
func (s *Subscription) Lines() <-chan string {
	return s.ch
}

// Close unregisters the subscription and closes its channel. Safe to call
// after the broadcaster has shut down.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	if _, ok := s.b.subs[s]; !ok {
		return
	}
	delete(s.b.subs, s)
	close(s.ch)
}
