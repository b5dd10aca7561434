package streaming

import (
	"context"
	"sync"
	"sync/atomic"
)

// subscriberBuffer is sized for a typical run: a started/completed pair
// per node on graphs of a few dozen nodes.
const subscriberBuffer = 64

// runSubscriber is one attached listener. types is nil when every event
// kind is wanted.
type runSubscriber struct {
	ch     chan StreamEvent
	nodeID string
	types  map[string]struct{}
}

func (s *runSubscriber) wants(e StreamEvent) bool {
	if s.nodeID != "" && s.nodeID != e.NodeID {
		return false
	}
	if s.types != nil {
		if _, ok := s.types[e.EventType]; !ok {
			return false
		}
	}
	return true
}

// MemoryHub fans run events out to in-process subscribers. Listeners
// watching a single run are bucketed by run ID, so publishing touches
// only that run's listeners plus the firehose watchers.
type MemoryHub struct {
	mu       sync.RWMutex
	nextID   uint64
	byRun    map[string]map[uint64]*runSubscriber
	firehose map[uint64]*runSubscriber

	dropped atomic.Int64
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		byRun:    make(map[string]map[uint64]*runSubscriber),
		firehose: make(map[uint64]*runSubscriber),
	}
}

// Publish delivers the event to every matching subscriber. Delivery
// never blocks: a full subscriber buffer drops the event and bumps the
// drop counter instead of stalling the run.
func (h *MemoryHub) Publish(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.byRun[event.RunID] {
		h.deliver(sub, event)
	}
	for _, sub := range h.firehose {
		h.deliver(sub, event)
	}
	return nil
}

func (h *MemoryHub) deliver(sub *runSubscriber, event StreamEvent) {
	if !sub.wants(event) {
		return
	}
	select {
	case sub.ch <- event:
	default:
		h.dropped.Add(1)
	}
}

// Subscribe attaches a listener for events matching the filter. The
// returned cancel function detaches it; the channel is never closed, so
// a read after cancel simply blocks.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sub := &runSubscriber{
		ch:     make(chan StreamEvent, subscriberBuffer),
		nodeID: filter.NodeID,
	}
	if len(filter.EventTypes) > 0 {
		sub.types = make(map[string]struct{}, len(filter.EventTypes))
		for _, t := range filter.EventTypes {
			sub.types[t] = struct{}{}
		}
	}

	runID := filter.RunID

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if runID != "" {
		bucket := h.byRun[runID]
		if bucket == nil {
			bucket = make(map[uint64]*runSubscriber)
			h.byRun[runID] = bucket
		}
		bucket[id] = sub
	} else {
		h.firehose[id] = sub
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if runID != "" {
			delete(h.byRun[runID], id)
			if len(h.byRun[runID]) == 0 {
				delete(h.byRun, runID)
			}
		} else {
			delete(h.firehose, id)
		}
		h.mu.Unlock()
	}

	return sub.ch, cancel, nil
}

// Dropped reports how many events were discarded on full buffers since
// the hub was created.
func (h *MemoryHub) Dropped() int64 {
	return h.dropped.Load()
}
