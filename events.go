package flow

import (
	"sync"

	"github.com/checkout-flow/flow/page"
)

// ContainerReady is published every time the mounting point has been created or confirmed.
type ContainerReady struct {
	Container page.Element
}

// Bus is a typed publish/subscribe channel. Publish never blocks: a subscriber that has not
// drained its previous value only sees the latest one.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
}

// NewBus returns an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[int]chan T)}
}

// Subscribe registers a listener. cancel unregisters it and closes the channel.
func (b *Bus[T]) Subscribe() (events <-chan T, cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan T, 1)
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// Publish delivers v to every subscriber.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		for {
			select {
			case ch <- v:
			default:
				// Drop the stale value and retry with the latest one.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}
