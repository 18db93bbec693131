package transport

import (
	"context"
	"sync"
)

// Bus is an in-process Transport: non-blocking fan-out over buffered
// per-subscriber channels, adapted from the teacher's internal/events.Bus
// with EventType generalized to an arbitrary group string. Useful for
// same-process drone simulators and tests; the real drone-facing transport
// is the websocket-backed Hub in ws.go.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Message
	bufferSize  int
}

// NewBus constructs a Bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[string][]chan Message),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for every message published to group. fn runs in
// its own goroutine, one per subscription, matching the teacher's delivery
// model; a panic inside fn is recovered so it can never take down the bus.
func (b *Bus) Subscribe(group string, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, b.bufferSize)
	b.subscribers[group] = append(b.subscribers[group], ch)

	go func() {
		for msg := range ch {
			func() {
				defer func() { recover() }()
				fn(msg)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[group]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[group] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// Publish is non-blocking: if a subscriber's channel is full the message is
// dropped for that subscriber rather than stalling the publisher.
func (b *Bus) Publish(ctx context.Context, group string, msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[group] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Close tears down every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for group, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, group)
	}
}
