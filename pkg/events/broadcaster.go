package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const broadcasterLogPrefix = "events:broadcaster"

// Broadcaster fans invocation events out to in-process subscribers such as
// live websocket feeds. A subscriber that falls behind loses events rather
// than stalling the invocation that produced them.
type Broadcaster struct {
	mu     sync.Mutex
	buffer int
	subs   map[chan *InvocationEvent]struct{}
}

// NewBroadcaster creates a Broadcaster whose subscriber channels hold up to buffer events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster{buffer: buffer, subs: make(map[chan *InvocationEvent]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel func removes it and
// closes the channel; calling it more than once is safe.
func (b *Broadcaster) Subscribe() (<-chan *InvocationEvent, func()) {
	ch := make(chan *InvocationEvent, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// PublishInvoked delivers event to every subscriber without blocking.
func (b *Broadcaster) PublishInvoked(_ context.Context, event *InvocationEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			slog.Debug(fmt.Sprintf("%s - dropped event %s for slow subscriber", broadcasterLogPrefix, event.InvocationID))
		}
	}
	return nil
}
