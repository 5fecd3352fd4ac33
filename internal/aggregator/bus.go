package aggregator

import (
	"sync"

	"github.com/xm-labs/orderbook-aggregator/pkg/types"
)

// busBufferSize is the per-subscriber and producer-side bound from
// spec.md §5's resource caps: "broadcast bus per pair: 100 items".
const busBufferSize = 100

// Update is what the Bus fans out: either a freshly merged Summary or a
// terminal error that ends the Aggregator's lifetime.
type Update struct {
	Summary types.Summary
	Err     error
}

// Bus is a bounded, lossy, single-producer multi-subscriber broadcast
// channel for one TradedPair's Updates. Publish never blocks: a
// subscriber that cannot keep up has its oldest buffered Update dropped
// to make room for the newest one, per spec.md §4.3's emission
// invariants ("the broadcast bus drops ... rather than blocking the
// producer").
type Bus struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch chan Update
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Subscriber is the subscriber-facing half of a Bus subscription: a
// receive-only channel plus an Unsubscribe to release it.
type Subscriber struct {
	C           <-chan Update
	unsubscribe func()
}

// Unsubscribe detaches this subscriber from the Bus. Safe to call more
// than once.
func (s *Subscriber) Unsubscribe() { s.unsubscribe() }

// Subscribe attaches a new Subscriber to the Bus. If the Bus is already
// closed, the returned Subscriber's channel is immediately closed.
func (b *Bus) Subscribe() *Subscriber {
	sub := &subscriber{ch: make(chan Update, busBufferSize)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return &Subscriber{C: sub.ch, unsubscribe: func() {}}
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return &Subscriber{
		C: sub.ch,
		unsubscribe: func() {
			once.Do(func() {
				b.mu.Lock()
				if _, ok := b.subs[sub]; ok {
					delete(b.subs, sub)
					close(sub.ch)
				}
				b.mu.Unlock()
			})
		},
	}
}

// Publish fans out an Update to every current subscriber, dropping the
// oldest queued Update for any subscriber whose buffer is full. It never
// blocks.
func (b *Bus) Publish(update Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		select {
		case sub.ch <- update:
		default:
			// Slow subscriber: drop its oldest queued update to make
			// room, then retry once. If a concurrent receive already
			// drained a slot, the retry still succeeds.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- update:
			default:
			}
		}
	}
}

// Close terminates the Bus: every current and future subscriber's
// channel is closed, and further Publish calls are no-ops.
func (b *Bus) Close() {
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
