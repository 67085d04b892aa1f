// Package events provides an in-process publish/subscribe bus distinct from
// the durable Append Log: it fans out domain events to interested in-process
// listeners without touching disk. The trading loop publishes regime.<symbol>
// and signal.<symbol> topics; the broadcast sampler does not subscribe here,
// it reads the Live State Cache.
package events

import "sync"

// Handler receives a published domain event. Handlers run synchronously on
// the publisher's goroutine, so they must not block.
type Handler func(topic string, payload interface{})

// Bus is a minimal, topic-keyed fan-out registry.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]Handler
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[string][]Handler)}
}

// Subscribe registers h to receive every Publish call on topic. It returns an
// unsubscribe function.
func (b *Bus) Subscribe(topic string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[topic] = append(b.listeners[topic], h)
	idx := len(b.listeners[topic]) - 1

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		handlers := b.listeners[topic]
		if idx >= len(handlers) {
			return
		}
		b.listeners[topic] = append(handlers[:idx], handlers[idx+1:]...)
	}
}

// Publish synchronously invokes every handler registered for topic.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.listeners[topic]))
	copy(handlers, b.listeners[topic])
	b.mu.RUnlock()

	for _, h := range handlers {
		h(topic, payload)
	}
}
