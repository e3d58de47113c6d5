// Package events is an in-process, synchronous fan-out of domain events to registered handlers.
package events

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/peerctl/shared/management/peers"
	"github.com/netbirdio/peerctl/shared/metrics"
)

// Event is delivered to handlers. Peer is nil for session events.
type Event struct {
	Kind Kind
	Peer *peers.Record
	At   time.Time
}

// Handler receives events. A returned error is logged and otherwise ignored.
type Handler func(Event) error

// HandlerID identifies a registration for Off
type HandlerID uint64

type registration struct {
	id      HandlerID
	handler Handler
}

// Notifier dispatches events to handlers registered per kind. It is safe for concurrent use and
// handlers may register or deregister handlers while being invoked.
type Notifier struct {
	mu       sync.Mutex
	nextID   HandlerID
	handlers map[Kind][]registration

	metrics *metrics.Metrics
	now     func() time.Time
}

// NewNotifier creates a Notifier. m may be nil.
func NewNotifier(m *metrics.Metrics) *Notifier {
	return &Notifier{
		handlers: make(map[Kind][]registration),
		metrics:  m,
		now:      time.Now,
	}
}

// On registers handler for kind
func (n *Notifier) On(kind Kind, handler Handler) HandlerID {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.handlers[kind] = append(n.handlers[kind], registration{id: id, handler: handler})
	return id
}

// Off removes the registration. Unknown ids are ignored.
func (n *Notifier) Off(kind Kind, id HandlerID) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.handlers[kind] = slices.DeleteFunc(n.handlers[kind], func(r registration) bool {
		return r.id == id
	})
	if len(n.handlers[kind]) == 0 {
		delete(n.handlers, kind)
	}
}

// Once registers handler for a single invocation. It is removed before it runs, so a nested Emit
// from inside the handler does not call it again.
func (n *Notifier) Once(kind Kind, handler Handler) HandlerID {
	var fired atomic.Bool
	var id HandlerID
	idReady := make(chan struct{})

	id = n.On(kind, func(e Event) error {
		if !fired.CompareAndSwap(false, true) {
			return nil
		}
		<-idReady
		n.Off(kind, id)
		return handler(e)
	})
	close(idReady)
	return id
}

// Count returns the number of handlers registered for kind
func (n *Notifier) Count(kind Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.handlers[kind])
}

// Emit calls every handler registered for kind. Handler errors and panics are logged and do not
// stop the remaining handlers. Emit on a nil Notifier does nothing.
func (n *Notifier) Emit(kind Kind, peer *peers.Record) {
	if n == nil {
		return
	}

	n.mu.Lock()
	handlers := slices.Clone(n.handlers[kind])
	n.mu.Unlock()

	n.metrics.CountEvent(kind.String())

	event := Event{Kind: kind, At: n.now()}
	if peer != nil {
		p := *peer
		event.Peer = &p
	}

	log.WithField("event", kind.String()).Tracef("dispatching to %d handler(s)", len(handlers))

	for _, r := range handlers {
		if err := n.invoke(r, event); err != nil {
			log.WithField("event", kind.String()).Errorf("event handler %d failed: %v", r.id, err)
		}
	}
}

func (n *Notifier) invoke(r registration, event Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.handler(event)
}
