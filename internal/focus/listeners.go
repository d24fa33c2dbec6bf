// internal/focus/listeners.go
package focus

type listener[T any] struct {
	id int
	fn func(T)
}

// listeners is an ordered subscriber list. Removing a subscriber while an
// emit is in flight takes effect on the next emit.
type listeners[T any] struct {
	next  int
	items []listener[T]
}

func (l *listeners[T]) add(fn func(T)) (unsubscribe func()) {
	l.next++
	id := l.next
	l.items = append(l.items, listener[T]{id: id, fn: fn})
	return func() {
		for i, it := range l.items {
			if it.id == id {
				l.items = append(l.items[:i:i], l.items[i+1:]...)
				return
			}
		}
	}
}

func (l *listeners[T]) emit(v T) {
	for _, it := range l.items {
		it.fn(v)
	}
}

func (l *listeners[T]) clear() { l.items = nil }
