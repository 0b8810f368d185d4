package records

import (
	"context"
	"sync"
)

// watchHub fans record snapshots out to subscribers with latest-value
// semantics: a slow consumer sees the most recent snapshot, not every
// intermediate one.
type watchHub struct {
	mu         sync.Mutex
	nextID     int64
	recordSubs map[int64]chan []*Record
	countSubs  map[int64]chan int
	closed     bool
}

func newWatchHub() *watchHub {
	return &watchHub{
		recordSubs: make(map[int64]chan []*Record),
		countSubs:  make(map[int64]chan int),
	}
}

// Watch returns a channel that receives the full newest-first record snapshot
// after every store mutation, starting with the current state. The channel
// closes when ctx is cancelled or the store closes.
func (s *Store) Watch(ctx context.Context) <-chan []*Record {
	ch := make(chan []*Record, 1)

	s.hub.mu.Lock()
	if s.hub.closed {
		s.hub.mu.Unlock()
		close(ch)
		return ch
	}
	s.hub.nextID++
	id := s.hub.nextID
	s.hub.recordSubs[id] = ch
	s.hub.mu.Unlock()

	if snapshot, err := s.List(ctx); err == nil {
		sendLatest(ch, snapshot)
	}

	go func() {
		<-ctx.Done()
		s.hub.mu.Lock()
		if existing, ok := s.hub.recordSubs[id]; ok {
			delete(s.hub.recordSubs, id)
			close(existing)
		}
		s.hub.mu.Unlock()
	}()

	return ch
}

// WatchPendingCount returns a channel that receives the pending-upload count
// after every store mutation, starting with the current value.
func (s *Store) WatchPendingCount(ctx context.Context) <-chan int {
	ch := make(chan int, 1)

	s.hub.mu.Lock()
	if s.hub.closed {
		s.hub.mu.Unlock()
		close(ch)
		return ch
	}
	s.hub.nextID++
	id := s.hub.nextID
	s.hub.countSubs[id] = ch
	s.hub.mu.Unlock()

	if count, err := s.PendingUploadCount(ctx); err == nil {
		sendLatest(ch, count)
	}

	go func() {
		<-ctx.Done()
		s.hub.mu.Lock()
		if existing, ok := s.hub.countSubs[id]; ok {
			delete(s.hub.countSubs, id)
			close(existing)
		}
		s.hub.mu.Unlock()
	}()

	return ch
}

// publish pushes fresh snapshots to all current subscribers. Snapshot queries
// run on a background context so a cancelled mutation context cannot starve
// observers. Query failures drop the notification; the next mutation retries.
func (s *Store) publish(context.Context) {
	s.hub.mu.Lock()
	hasRecordSubs := len(s.hub.recordSubs) > 0
	hasCountSubs := len(s.hub.countSubs) > 0
	s.hub.mu.Unlock()
	if !hasRecordSubs && !hasCountSubs {
		return
	}

	ctx := context.Background()

	var snapshot []*Record
	if hasRecordSubs {
		list, err := s.List(ctx)
		if err != nil {
			hasRecordSubs = false
		} else {
			snapshot = list
		}
	}

	count := -1
	if hasCountSubs {
		value, err := s.PendingUploadCount(ctx)
		if err != nil {
			hasCountSubs = false
		} else {
			count = value
		}
	}

	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.hub.closed {
		return
	}
	if hasRecordSubs {
		for _, ch := range s.hub.recordSubs {
			sendLatest(ch, snapshot)
		}
	}
	if hasCountSubs {
		for _, ch := range s.hub.countSubs {
			sendLatest(ch, count)
		}
	}
}

func (h *watchHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.recordSubs {
		delete(h.recordSubs, id)
		close(ch)
	}
	for id, ch := range h.countSubs {
		delete(h.countSubs, id)
		close(ch)
	}
}

// sendLatest replaces any undelivered value in a capacity-1 channel.
func sendLatest[T any](ch chan T, value T) {
	for {
		select {
		case ch <- value:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
