package watcher

import (
	"sync"
	"time"
)

// debouncer coalesces rapid events for the same note so a burst of saves
// triggers one re-index. Merge rules for a path within one window:
//
//	CREATE then MODIFY = CREATE  (still a new file)
//	CREATE then DELETE = nothing (never really existed)
//	MODIFY then DELETE = DELETE
//	DELETE then CREATE = MODIFY  (file was replaced)
type debouncer struct {
	window time.Duration
	output chan []Event

	mu      sync.Mutex
	pending map[string]Event
	firstOp map[string]Op
	timer   *time.Timer
	stopped bool
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window:  window,
		output:  make(chan []Event, 16),
		pending: make(map[string]Event),
		firstOp: make(map[string]Op),
	}
}

// add feeds one event, restarting the flush timer.
func (d *debouncer) add(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	first, seen := d.firstOp[event.Path]
	if !seen {
		d.pending[event.Path] = event
		d.firstOp[event.Path] = event.Op
	} else {
		merged, keep := coalesce(first, d.pending[event.Path], event)
		if !keep {
			delete(d.pending, event.Path)
			delete(d.firstOp, event.Path)
		} else {
			d.pending[event.Path] = merged
		}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges a new event into the pending one. The second return is
// false when the pair cancels out.
func coalesce(first Op, pending, next Event) (Event, bool) {
	switch first {
	case OpCreate:
		switch next.Op {
		case OpModify:
			return pending, true
		case OpDelete:
			return Event{}, false
		}
	case OpDelete:
		if next.Op == OpCreate {
			return Event{Path: next.Path, Op: OpModify}, true
		}
	}
	return next, true
}

func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]Event, 0, len(d.pending))
	for _, e := range d.pending {
		batch = append(batch, e)
	}

	// Pending state is only cleared once the batch is handed off. When
	// the consumer is behind, the batch stays pending and another window
	// is armed, so no event is ever dropped.
	select {
	case d.output <- batch:
		d.pending = make(map[string]Event)
		d.firstOp = make(map[string]Op)
	default:
		d.timer = time.AfterFunc(d.window, d.flush)
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
