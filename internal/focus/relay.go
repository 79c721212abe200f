package focus

import "sync"

// DefaultRelayCapacity is the number of snapshots the relay buffers before
// the watcher blocks.
const DefaultRelayCapacity = 32

// Relay is the bounded FIFO hand-off between the watcher thread (single
// producer) and the reporter (single consumer). Only the consumer closes it.
type Relay struct {
	ch     chan ActiveWindow
	closed chan struct{}
	once   sync.Once
}

// NewRelay creates a relay buffering up to capacity snapshots.
func NewRelay(capacity int) *Relay {
	if capacity <= 0 {
		capacity = DefaultRelayCapacity
	}
	return &Relay{
		ch:     make(chan ActiveWindow, capacity),
		closed: make(chan struct{}),
	}
}

// Send pushes w, blocking while the relay is full. It returns ErrRelayClosed
// once the consumer has closed the relay.
func (r *Relay) Send(w ActiveWindow) error {
	// A closed relay must win over free buffer space
	select {
	case <-r.closed:
		return ErrRelayClosed
	default:
	}

	select {
	case r.ch <- w:
		return nil
	case <-r.closed:
		return ErrRelayClosed
	}
}

// TryRecv returns the oldest queued snapshot without blocking.
func (r *Relay) TryRecv() (ActiveWindow, bool) {
	select {
	case w := <-r.ch:
		return w, true
	default:
		return ActiveWindow{}, false
	}
}

// Len reports how many snapshots are queued.
func (r *Relay) Len() int {
	return len(r.ch)
}

// Close drops the consumer side. Safe to call more than once.
func (r *Relay) Close() {
	r.once.Do(func() {
		close(r.closed)
	})
}

// Closed is closed once the consumer has closed the relay.
func (r *Relay) Closed() <-chan struct{} {
	return r.closed
}
