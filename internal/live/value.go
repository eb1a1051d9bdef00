// Package live holds the push-style plumbing between storage and list
// consumers: observable values, change fan-out and a serial query worker.
package live

import "sync"

// Value holds the latest snapshot of T. Subscribers receive the current
// value on subscribe and every later one; a slow subscriber only ever sees
// the most recent value.
type Value[T any] struct {
	mu   sync.Mutex
	val  T
	subs map[int]chan T
	next int
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{val: initial, subs: make(map[int]chan T)}
}

func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val
}

// Set stores val and pushes it to every subscriber.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.val = val
	for _, ch := range v.subs {
		push(ch, val)
	}
}

// Subscribe returns a channel of snapshots and a cancel func that closes it.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan T, 1)
	id := v.next
	v.next++
	v.subs[id] = ch
	ch <- v.val

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			delete(v.subs, id)
			close(ch)
		})
	}
}

// push replaces whatever is pending in ch with val.
func push[T any](ch chan T, val T) {
	select {
	case <-ch:
	default:
	}
	ch <- val
}
