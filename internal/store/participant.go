package store

import (
	"sort"
	"sync"

	"github.com/efreitasn/marketsim/internal/domain"
)

// ParticipantStore is the roster: a thread-safe in-memory store of
// participants keyed by id, remembering registration order. Retired
// participants stay readable but leave the active roster for good.
type ParticipantStore struct {
	mu           sync.RWMutex
	participants map[int]*domain.Participant
	active       []*domain.Participant // registration order
}

// NewParticipantStore creates an empty ParticipantStore.
func NewParticipantStore() *ParticipantStore {
	return &ParticipantStore{
		participants: make(map[int]*domain.Participant),
	}
}

// Create adds a participant to the active roster. It returns
// domain.ErrParticipantExists if the id is already taken.
func (s *ParticipantStore) Create(p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.participants[p.ID]; exists {
		return domain.ErrParticipantExists
	}
	s.participants[p.ID] = p
	s.active = append(s.active, p)
	return nil
}

// Get retrieves a participant by id, active or not. It returns
// domain.ErrParticipantNotFound if the participant does not exist.
func (s *ParticipantStore) Get(id int) (*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[id]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	return p, nil
}

// GetActive retrieves a participant that is still trading. It returns
// domain.ErrParticipantInactive for a participant that has quit.
func (s *ParticipantStore) GetActive(id int) (*domain.Participant, error) {
	p, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if p.Quit() {
		return nil, domain.ErrParticipantInactive
	}
	return p, nil
}

// Retire removes a participant from the active roster. Retiring an unknown
// or already retired id is a no-op.
func (s *ParticipantStore) Retire(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.active {
		if p.ID == id {
			s.active = append(s.active[:i:i], s.active[i+1:]...)
			return
		}
	}
}

// Active returns a snapshot of the active roster in registration order.
// Callers may retire participants while iterating the snapshot.
func (s *ParticipantStore) Active() []*domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Participant, len(s.active))
	copy(out, s.active)
	return out
}

// ActiveCount returns the size of the active roster.
func (s *ParticipantStore) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// All returns every participant ever registered, ordered by id.
func (s *ParticipantStore) All() []*domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
