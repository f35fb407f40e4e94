package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"telegram-tutor-bot/internal/models"
)

// Session is the pending prompt of one chat plus what was collected so far.
type Session struct {
	Step      models.Step
	Data      map[string]string
	UpdatedAt time.Time
}

// Store keeps sessions in memory. Entries idle for longer than ttl are dropped
// on the next access; nothing survives a restart.
type Store struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock clockwork.Clock
	items map[int64]*Session
}

func NewStore(ttl time.Duration, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		ttl:   ttl,
		clock: clock,
		items: make(map[int64]*Session),
	}
}

// Get returns a copy of the live session for chatID, or ok=false.
func (s *Store) Get(chatID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[chatID]
	if !ok {
		return Session{}, false
	}
	if s.clock.Since(it.UpdatedAt) > s.ttl {
		delete(s.items, chatID)
		return Session{}, false
	}
	cp := Session{Step: it.Step, UpdatedAt: it.UpdatedAt, Data: make(map[string]string, len(it.Data))}
	for k, v := range it.Data {
		cp.Data[k] = v
	}
	return cp, true
}

// Begin starts a fresh flow, dropping whatever was collected before.
func (s *Store) Begin(chatID int64, step models.Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[chatID] = &Session{Step: step, Data: map[string]string{}, UpdatedAt: s.clock.Now()}
}

// Advance moves an existing flow to step, storing key=value on the way.
// An empty key stores nothing.
func (s *Store) Advance(chatID int64, step models.Step, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[chatID]
	if !ok {
		it = &Session{Data: map[string]string{}}
		s.items[chatID] = it
	}
	if key != "" {
		it.Data[key] = value
	}
	it.Step = step
	it.UpdatedAt = s.clock.Now()
}

func (s *Store) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, chatID)
}

// Sweep drops every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, it := range s.items {
		if s.clock.Since(it.UpdatedAt) > s.ttl {
			delete(s.items, id)
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
