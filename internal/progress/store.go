package progress

import (
	"fmt"
	"sync"
)

// Store is the process-wide table of task progress records. It is a pure
// state container shared by one writer goroutine per task and any number of
// concurrent readers; a single coarse lock serializes all operations, which
// is fine because records are small and every operation is O(1).
//
// Store is always passed explicitly to the components that need it; there is
// no package-level instance.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]Record
}

// NewStore creates an empty Store with the specified initial capacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 64
	}
	return &Store{
		tasks: make(map[string]Record, capacity),
	}
}

// Set replaces or creates the full record for a task.
func (s *Store) Set(id string, rec Record) {
	s.mu.Lock()
	s.tasks[id] = rec
	s.mu.Unlock()
}

// Patch atomically updates an existing record using the provided function.
// Returns an error if the task doesn't exist; the owning task is the only
// expected caller, so that indicates the record was cleaned up underneath it.
func (s *Store) Patch(id string, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	fn(&rec)
	s.tasks[id] = rec
	return nil
}

// Get returns a snapshot of the record for a task. Unknown ids yield the
// not_found sentinel; the snapshot never reflects subsequent mutation.
func (s *Store) Get(id string) Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.tasks[id]; ok {
		return rec
	}
	return NotFound()
}

// Delete removes the record for a task. Removing an absent id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
}

// Len returns the number of live records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
