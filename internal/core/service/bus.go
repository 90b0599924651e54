package service

import (
	"log"
	"sync"

	"github.com/venuekit/tapledger/internal/core/domain"
)

// TapBus fans normalized taps out to in-process subscribers (kiosk streams,
// live displays). No history: late subscribers miss prior events.
type TapBus struct {
	mu   sync.Mutex
	next int
	subs map[int]func(domain.TapEvent)
}

func NewTapBus() *TapBus {
	return &TapBus{subs: make(map[int]func(domain.TapEvent))}
}

// Subscribe registers a handler and returns its deregistration func.
func (b *TapBus) Subscribe(fn func(domain.TapEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers the event to every subscriber. A panicking subscriber is
// recovered and logged so it cannot block delivery to the others.
func (b *TapBus) Publish(ev domain.TapEvent) {
	b.mu.Lock()
	handlers := make([]func(domain.TapEvent), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		b.deliver(fn, ev)
	}
}

func (b *TapBus) deliver(fn func(domain.TapEvent), ev domain.TapEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[bus] subscriber panic: %v", r)
		}
	}()
	fn(ev)
}
