package utils

import "sync"

type observer[T any] struct {
	id int
	fn func(T)
}

// Observable is a value with one writer and any number of readers.
// Only the setter returned by NewObservable can change it.
type Observable[T comparable] struct {
	mu        sync.RWMutex
	value     T
	nextID    int
	observers []observer[T]
}

func NewObservable[T comparable](initial T) (*Observable[T], func(T)) {
	o := &Observable[T]{value: initial}
	return o, o.set
}

func (o *Observable[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.value
}

// Subscribe calls fn after every change, in the writer's goroutine.
func (o *Observable[T]) Subscribe(fn func(T)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextID
	o.nextID++
	o.observers = append(o.observers, observer[T]{id: id, fn: fn})

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, ob := range o.observers {
			if ob.id == id {
				o.observers = append(o.observers[:i:i], o.observers[i+1:]...)
				return
			}
		}
	}
}

func (o *Observable[T]) set(v T) {
	o.mu.Lock()
	if o.value == v {
		o.mu.Unlock()
		return
	}
	o.value = v
	observers := make([]observer[T], len(o.observers))
	copy(observers, o.observers)
	o.mu.Unlock()

	for _, ob := range observers {
		ob.fn(v)
	}
}
