package runtime

import (
	"sync"

	"github.com/isaigordeev/saxsrs/sample"
	"github.com/isaigordeev/saxsrs/stage"
)

// EventKind discriminates the variants of Event.
type EventKind int

const (
	EventProgress EventKind = iota
	EventSample
	EventComplete
)

// Event is one occurrence on a Runtime's EventBus. Only the fields
// relevant to Kind are populated.
type Event struct {
	Kind      EventKind
	StageID   stage.ID
	Completed uint64
	Total     uint64
	Sample    *sample.Sample
	Metadata  sample.FlowMetadata
	Err       error
}

// EventBus fans a Runtime's progress/sample/completion stream out to
// subscribers, each with its own buffered channel. Grounded on
// framebus's DropNew policy: a send to a full subscriber channel drops
// the event rather than blocking the publisher — a slow or absent
// subscriber never stalls the worker fleet.
type EventBus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewEventBus returns an EventBus with no subscribers.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new channel of the given buffer size and
// returns it along with an unsubscribe function. Calling unsubscribe
// more than once is safe.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
	return ch, unsubscribe
}

// publish fans e out to every current subscriber, dropping it for any
// subscriber whose channel is full.
func (b *EventBus) publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
