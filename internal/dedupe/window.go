// ABOUTME: Size- and time-bounded window of recently seen event keys
// ABOUTME: Used by the event bus to drop transport-level duplicates

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key    string
	seenAt time.Time
}

// Window tracks recently seen keys. Keys are kept in insertion order so both
// expiry and capacity eviction pop from the front in O(1).
type Window struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a window that forgets keys after ttl or once maxSize newer keys
// have been recorded, whichever comes first.
func New(ttl time.Duration, maxSize int) *Window {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Window{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Seen reports whether key is in the window and records it if not. Returns
// true for a duplicate.
func (w *Window) Seen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.expireLocked(now)

	if _, ok := w.seen[key]; ok {
		return true
	}

	if w.order.Len() >= w.maxSize {
		w.removeLocked(w.order.Front())
	}
	w.seen[key] = w.order.PushBack(&entry{key: key, seenAt: now})
	return false
}

// Len returns the number of keys currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expireLocked(w.now())
	return w.order.Len()
}

// Reset forgets every key.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen = make(map[string]*list.Element)
	w.order.Init()
}

// expireLocked drops entries older than ttl. Must be called with mu held.
func (w *Window) expireLocked(now time.Time) {
	for front := w.order.Front(); front != nil; front = w.order.Front() {
		e, _ := front.Value.(*entry)
		if now.Sub(e.seenAt) < w.ttl {
			return
		}
		w.removeLocked(front)
	}
}

func (w *Window) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	e, _ := el.Value.(*entry)
	w.order.Remove(el)
	delete(w.seen, e.key)
}
