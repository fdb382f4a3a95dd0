// Package views lets independent read-models share one repository cache.
//
// A selector projects the full cached collection to a view-specific shape; subscribers
// hear about a cache change only when their shape actually changed.
package views

import (
	"reflect"
	"sync"

	"tasksync/internal/model"
)

// Source is the cache a view observes. *repo.Repository satisfies it.
type Source interface {
	Tasks() []model.Task
	OnChange(func(tasks []model.Task)) (cancel func())
}

// Subscribe evaluates selector against the current cache and calls onChange with the
// result, then again after every cache change whose derived shape differs from the
// last one delivered. onChange calls never overlap and the initial one comes first.
// onChange must not write to src. The returned unsubscribe is idempotent; once it
// returns no further onChange calls start.
func Subscribe[S any](src Source, selector func([]model.Task) S, onChange func(S)) (unsubscribe func()) {
	sub := &subscription[S]{selector: selector, onChange: onChange}

	// A write racing registration waits on out until the initial shape is delivered.
	sub.out.Lock()
	cancel := src.OnChange(sub.deliver)
	sub.mu.Lock()
	sub.last = selector(src.Tasks())
	first := sub.last
	sub.mu.Unlock()
	onChange(first)
	sub.out.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			sub.mu.Lock()
			sub.stopped = true
			sub.mu.Unlock()
		})
	}
}

type subscription[S any] struct {
	// out serializes onChange calls.
	out sync.Mutex

	mu       sync.Mutex
	selector func([]model.Task) S
	onChange func(S)
	last     S
	stopped  bool
}

func (s *subscription[S]) deliver(tasks []model.Task) {
	s.out.Lock()
	defer s.out.Unlock()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	next := s.selector(tasks)
	if reflect.DeepEqual(next, s.last) {
		s.mu.Unlock()
		return
	}
	s.last = next
	s.mu.Unlock()
	s.onChange(next)
}
