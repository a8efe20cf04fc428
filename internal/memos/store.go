package memos

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kuitang/memos/internal/errs"
)

// Store holds every memo in process memory. All methods are safe for
// concurrent use; each one runs entirely under the store lock.
type Store struct {
	mu     sync.RWMutex
	memos  map[int64]*Memo
	policy IDPolicy
	lastID int64
}

// NewStore creates an empty store using the given id policy.
func NewStore(policy IDPolicy) *Store {
	if policy == "" {
		policy = PolicySequence
	}
	return &Store{
		memos:  make(map[int64]*Memo),
		policy: policy,
	}
}

// Policy returns the id policy the store was created with.
func (s *Store) Policy() IDPolicy {
	return s.policy
}

// Create inserts a new memo and returns it with its assigned id.
func (s *Store) Create(title, contents string) Memo {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &Memo{
		ID:       s.nextIDLocked(),
		Title:    title,
		Contents: contents,
	}
	s.memos[m.ID] = m
	return *m
}

// FindByID returns the memo with the given id.
func (s *Store) FindByID(id int64) (Memo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memos[id]
	if !ok {
		return Memo{}, notFound(id)
	}
	return *m, nil
}

// FindAll returns every stored memo in ascending id order.
func (s *Store) FindAll() []Memo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Memo, 0, len(s.memos))
	for _, m := range s.memos {
		all = append(all, *m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// ReplaceFields overwrites both title and contents of an existing memo.
func (s *Store) ReplaceFields(id int64, title, contents string) (Memo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memos[id]
	if !ok {
		return Memo{}, notFound(id)
	}
	m.Title = title
	m.Contents = contents
	return *m, nil
}

// ReplaceTitle overwrites the title of an existing memo, leaving contents as is.
func (s *Store) ReplaceTitle(id int64, title string) (Memo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memos[id]
	if !ok {
		return Memo{}, notFound(id)
	}
	m.Title = title
	return *m, nil
}

// Delete removes a memo.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.memos[id]; !ok {
		return notFound(id)
	}
	delete(s.memos, id)
	return nil
}

// Len returns the number of stored memos.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.memos)
}

// nextIDLocked must be called with s.mu held for writing.
func (s *Store) nextIDLocked() int64 {
	if s.policy == PolicyMaxPlusOne {
		var highest int64
		for id := range s.memos {
			if id > highest {
				highest = id
			}
		}
		return highest + 1
	}
	s.lastID++
	return s.lastID
}

func notFound(id int64) error {
	return &errs.Error{Code: errs.NotFound, Message: fmt.Sprintf("memo %d not found", id), Err: ErrNotFound}
}
