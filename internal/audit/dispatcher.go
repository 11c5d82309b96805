package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Retained lists event types that wait for buffer space even when
	// DropIfFull is set. A code delivery failure is the only record that an
	// issued code never reached its destination.
	Retained []string
}

// Dispatcher forwards audit events to a sink from one goroutine. A nil
// *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink       Sink
	queue      chan Event
	stop       chan struct{}
	wg         sync.WaitGroup
	dropIfFull bool
	retained   map[string]struct{}

	dropped  atomic.Uint64
	dropMu   sync.Mutex
	dropType map[string]uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, cfg.BufferSize),
		stop:       make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
		retained:   make(map[string]struct{}, len(cfg.Retained)),
		dropType:   make(map[string]uint64),
	}
	for _, eventType := range cfg.Retained {
		d.retained[eventType] = struct{}{}
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit stamps the event and queues it. With DropIfFull a full buffer drops
// non-retained events and counts them per type. Otherwise Emit waits for
// space until ctx is done or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event.Stamp()

	select {
	case d.queue <- event:
		return
	default:
	}
	if d.dropIfFull && !d.isRetained(event.EventType) {
		d.countDrop(event.EventType)
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.countDrop(event.EventType)
	case <-d.stop:
	}
}

func (d *Dispatcher) isRetained(eventType string) bool {
	_, ok := d.retained[eventType]
	return ok
}

func (d *Dispatcher) countDrop(eventType string) {
	d.dropped.Add(1)
	d.dropMu.Lock()
	d.dropType[eventType]++
	d.dropMu.Unlock()
}

// Close stops accepting events, drains the buffer into the sink and waits.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped is the total number of events that never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType breaks Dropped down by event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return nil
	}
	d.dropMu.Lock()
	defer d.dropMu.Unlock()

	out := make(map[string]uint64, len(d.dropType))
	for eventType, n := range d.dropType {
		out[eventType] = n
	}
	return out
}
