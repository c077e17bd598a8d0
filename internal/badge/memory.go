package badge

import (
	"context"
	"sort"
	"sync"
)

type awardKey struct {
	participantID, sessionID, badgeID string
}

// InMemoryAwardStore is an AwardStore for tests and single-node deployments.
type InMemoryAwardStore struct {
	mu     sync.RWMutex
	awards map[awardKey]Award
}

// NewInMemoryAwardStore creates an empty store.
func NewInMemoryAwardStore() *InMemoryAwardStore {
	return &InMemoryAwardStore{awards: make(map[awardKey]Award)}
}

// HasBadge reports whether the award exists.
func (s *InMemoryAwardStore) HasBadge(_ context.Context, participantID, sessionID, badgeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.awards[awardKey{participantID, sessionID, badgeID}]
	return ok, nil
}

// CreateBadgeAward inserts the award unless it already exists.
func (s *InMemoryAwardStore) CreateBadgeAward(_ context.Context, award Award) (CreateResult, error) {
	if err := award.validate(); err != nil {
		return 0, err
	}
	key := awardKey{award.ParticipantID, award.SessionID, award.BadgeID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.awards[key]; ok {
		return AlreadyExists, nil
	}
	s.awards[key] = award
	return Created, nil
}

// ListSessionAwards returns a session's awards ordered by EarnedAt.
func (s *InMemoryAwardStore) ListSessionAwards(_ context.Context, sessionID string) ([]Award, error) {
	s.mu.RLock()
	var out []Award
	for k, a := range s.awards {
		if k.sessionID == sessionID {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sortAwards(out)
	return out, nil
}

func sortAwards(awards []Award) {
	sort.Slice(awards, func(i, j int) bool {
		if !awards[i].EarnedAt.Equal(awards[j].EarnedAt) {
			return awards[i].EarnedAt.Before(awards[j].EarnedAt)
		}
		if awards[i].ParticipantID != awards[j].ParticipantID {
			return awards[i].ParticipantID < awards[j].ParticipantID
		}
		return awards[i].BadgeID < awards[j].BadgeID
	})
}
