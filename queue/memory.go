package queue

import (
	"sync"

	"github.com/vinayprograms/awclient/errors"
)

// MemoryStore implements Store in memory. Nothing survives Close; useful
// for tests and for clients that accept losing their backlog.
type MemoryStore struct {
	mu     sync.Mutex
	items  []Request
	peeked bool
	signal *signal
	closed bool
}

// NewMemoryStore creates an empty in-memory queue.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{signal: newSignal()}
}

// Enqueue appends a request.
func (s *MemoryStore) Enqueue(r Request) error {
	if err := r.Validate(); err != nil {
		return errors.InvalidInput(err.Error(), errors.WithCause(err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.items = append(s.items, r)
	s.signal.notify()
	return nil
}

// Peek returns the oldest request or nil.
func (s *MemoryStore) Peek() (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if len(s.items) == 0 {
		s.peeked = false
		return nil, nil
	}
	r := s.items[0]
	s.peeked = true
	return &r, nil
}

// Acknowledge removes the peeked request.
func (s *MemoryStore) Acknowledge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.peeked || len(s.items) == 0 {
		return ErrNothingPeeked
	}
	s.items = s.items[1:]
	s.peeked = false
	return nil
}

// Size returns the number of pending requests.
func (s *MemoryStore) Size() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}

// Notify returns the enqueue signal.
func (s *MemoryStore) Notify() <-chan struct{} {
	return s.signal.C()
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Requests returns a copy of the pending requests, oldest first.
func (s *MemoryStore) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.items))
	copy(out, s.items)
	return out
}

var _ Store = (*MemoryStore)(nil)
