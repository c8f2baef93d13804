// Package frontier holds the crawl's pending URLs in priority order together
// with the set of URLs that have ever been enqueued or visited.
package frontier

import (
	"container/heap"
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("frontier closed")
	// ErrDrained is returned by Next when nothing is queued or in flight.
	ErrDrained = errors.New("frontier drained")
	// ErrDuplicate is returned when a URL was already enqueued or visited.
	ErrDuplicate = errors.New("url already seen")
	// ErrFull is returned when the frontier is at capacity.
	ErrFull = errors.New("frontier full")
	// ErrRejected is returned when the admission check refused an entry.
	ErrRejected = errors.New("entry rejected")
)

// Entry is one URL awaiting a fetch.
type Entry struct {
	URL          string    `json:"url"`
	Depth        int       `json:"depth"`
	Priority     float64   `json:"priority"`
	DiscoveredAt time.Time `json:"discovered_at"`

	seq uint64
}

// before orders entries by priority desc, depth asc, then insertion order.
func (e Entry) before(o Entry) bool {
	if e.Priority != o.Priority {
		return e.Priority > o.Priority
	}
	if e.Depth != o.Depth {
		return e.Depth < o.Depth
	}
	return e.seq < o.seq
}

type entryHeap []Entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)        { *h = append(*h, x.(Entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Frontier is safe for concurrent use. The queue, the seen set and the
// in-flight set share one mutex so "seen" and "queued" never disagree.
type Frontier struct {
	mu       sync.Mutex
	queue    entryHeap
	seen     map[string]struct{}
	visited  map[string]struct{}
	inFlight map[string]Entry
	seq      uint64
	capacity int
	closed   bool
	// wake is closed and replaced whenever waiters may make progress.
	wake chan struct{}
}

// New creates a frontier holding at most capacity queued entries; zero or
// negative means unbounded.
func New(capacity int) *Frontier {
	return &Frontier{
		seen:     make(map[string]struct{}),
		visited:  make(map[string]struct{}),
		inFlight: make(map[string]Entry),
		capacity: capacity,
		wake:     make(chan struct{}),
	}
}

func (f *Frontier) broadcast() {
	close(f.wake)
	f.wake = make(chan struct{})
}

// Push enqueues e unless its URL was seen before.
func (f *Frontier) Push(e Entry) error {
	return f.Offer(e, nil)
}

// Offer enqueues e if its URL is new and admit, when non-nil, accepts the
// current queue length. The check and the insert are atomic.
func (f *Frontier) Offer(e Entry, admit func(queued int) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if _, ok := f.seen[e.URL]; ok {
		return ErrDuplicate
	}
	if f.capacity > 0 && len(f.queue) >= f.capacity {
		return ErrFull
	}
	if admit != nil && !admit(len(f.queue)) {
		return ErrRejected
	}

	if e.DiscoveredAt.IsZero() {
		e.DiscoveredAt = time.Now()
	}
	f.seen[e.URL] = struct{}{}
	f.push(e)
	return nil
}

func (f *Frontier) push(e Entry) {
	f.seq++
	e.seq = f.seq
	heap.Push(&f.queue, e)
	f.broadcast()
}

// Next blocks until an entry is available and marks it in flight. It
// returns ErrDrained when the queue is empty and no entry is in flight,
// ErrClosed after Close, or the context error. A done context wins over
// queued entries.
func (f *Frontier) Next(ctx context.Context) (Entry, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Entry{}, err
		}
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return Entry{}, ErrClosed
		}
		if len(f.queue) > 0 {
			e := heap.Pop(&f.queue).(Entry)
			f.inFlight[e.URL] = e
			f.mu.Unlock()
			return e, nil
		}
		if len(f.inFlight) == 0 {
			f.mu.Unlock()
			return Entry{}, ErrDrained
		}
		wake := f.wake
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		case <-wake:
		}
	}
}

// Done marks an in-flight URL as visited.
func (f *Frontier) Done(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.inFlight, url)
	f.seen[url] = struct{}{}
	f.visited[url] = struct{}{}
	f.broadcast()
}

// Requeue puts an in-flight entry back, keeping its original priority.
// It is used when work was interrupted before the fetch happened.
func (f *Frontier) Requeue(e Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.inFlight, e.URL)
	if _, ok := f.visited[e.URL]; ok {
		f.broadcast()
		return
	}
	f.seen[e.URL] = struct{}{}
	f.push(e)
}

// MarkVisited records url as visited without fetching it.
func (f *Frontier) MarkVisited(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[url] = struct{}{}
	f.visited[url] = struct{}{}
}

// IsVisited reports whether url has been fetched or marked visited.
func (f *Frontier) IsVisited(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[url]
	return ok
}

// Seen reports whether url was ever enqueued or visited.
func (f *Frontier) Seen(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[url]
	return ok
}

// Len returns the number of queued entries.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// InFlight returns the number of entries handed out and not yet done.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inFlight)
}

// VisitedCount returns the number of visited URLs.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// Close stops Next from handing out entries and wakes all waiters. Queued
// entries stay available to Snapshot.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.broadcast()
}

// Closed reports whether Close was called.
func (f *Frontier) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Snapshot returns queued and in-flight entries in dequeue order. In-flight
// entries are included so that a snapshot taken mid-crawl loses nothing.
func (f *Frontier) Snapshot() []Entry {
	f.mu.Lock()
	entries := make([]Entry, 0, len(f.queue)+len(f.inFlight))
	entries = append(entries, f.queue...)
	for _, e := range f.inFlight {
		entries = append(entries, e)
	}
	f.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].before(entries[j]) })
	return entries
}
