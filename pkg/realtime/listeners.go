package realtime

import (
	"slices"
	"sync"
)

// Listeners is a concurrency-safe registry of event handlers.
type Listeners struct {
	mu     sync.Mutex
	nextID uint64
	byName map[string]map[uint64]*listener
}

type listener struct {
	h    Handler
	once sync.Once
}

// On registers h for name and returns a func that removes it. The returned
// func is idempotent.
func (l *Listeners) On(name string, h Handler) (off func()) {
	if l == nil || h == nil {
		return func() {}
	}
	entry := &listener{h: h}

	l.mu.Lock()
	if l.byName == nil {
		l.byName = make(map[string]map[uint64]*listener)
	}
	l.nextID++
	id := l.nextID
	if l.byName[name] == nil {
		l.byName[name] = make(map[uint64]*listener)
	}
	l.byName[name][id] = entry
	l.mu.Unlock()

	return func() {
		entry.once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if set := l.byName[name]; set != nil && set[id] == entry {
				delete(set, id)
				if len(set) == 0 {
					delete(l.byName, name)
				}
			}
		})
	}
}

// RemoveAll drops every handler.
func (l *Listeners) RemoveAll() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.byName = nil
	l.mu.Unlock()
}

// Count reports the number of handlers registered for name.
func (l *Listeners) Count(name string) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byName[name])
}

// Emit calls every handler registered for ev.Name in registration order.
// Handlers run outside the registry lock.
func (l *Listeners) Emit(ev Event) (delivered int) {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	set := l.byName[ev.Name]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, set[id].h)
	}
	l.mu.Unlock()

	for _, h := range handlers {
		h(ev)
		delivered++
	}
	return delivered
}
