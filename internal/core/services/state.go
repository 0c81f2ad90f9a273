package services

import "sync"

// stateHolder keeps the latest value of T and fans it out to subscribers.
// Subscribers receive the current value on subscribe and only ever see the
// most recent value: a slow reader skips intermediate states.
type stateHolder[T any] struct {
	mu     sync.Mutex
	value  T
	subs   map[int]chan T
	nextID int
}

func newStateHolder[T any](initial T) *stateHolder[T] {
	return &stateHolder[T]{value: initial, subs: make(map[int]chan T)}
}

func (s *stateHolder[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *stateHolder[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	for _, ch := range s.subs {
		offerLatest(ch, v)
	}
}

// Update applies fn to the current value under the lock.
func (s *stateHolder[T]) Update(fn func(T) T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = fn(s.value)
	for _, ch := range s.subs {
		offerLatest(ch, s.value)
	}
}

func (s *stateHolder[T]) Subscribe() (<-chan T, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan T, 1)
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	ch <- s.value

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// offerLatest replaces any unread value in ch with v. ch must have capacity 1
// and only be written under the holder's lock.
func offerLatest[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
