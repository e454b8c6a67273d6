package syncbridge

import (
	"context"
	"sync"
)

// outbox queues snapshots for publication. Since every payload is a full
// snapshot, only the latest queued payload is kept. A single goroutine drains
// the outbox, so payloads are published in the order they were queued.
type outbox struct {
	mu      sync.Mutex
	pending []byte
	busy    bool
	idle    chan struct{} // closed once the drain goroutine is done

	publish func(payload []byte)
}

func newOutbox(publish func(payload []byte)) *outbox {
	return &outbox{publish: publish}
}

// enqueue queues payload, replacing a payload that was not sent yet
func (o *outbox) enqueue(payload []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pending != nil {
		coalescedTotal.Inc()
	}
	o.pending = payload
	if !o.busy {
		o.busy = true
		o.idle = make(chan struct{})
		go o.drain()
	}
}

func (o *outbox) drain() {
	for {
		o.mu.Lock()
		payload := o.pending
		o.pending = nil
		if payload == nil {
			o.busy = false
			close(o.idle)
			o.mu.Unlock()
			return
		}
		o.mu.Unlock()

		o.publish(payload)
	}
}

// flush waits until the outbox is drained
func (o *outbox) flush(ctx context.Context) error {
	o.mu.Lock()
	if !o.busy {
		o.mu.Unlock()
		return nil
	}
	idle := o.idle
	o.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
