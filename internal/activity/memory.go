package activity

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is an in-memory Gateway and Recorder.
// Thread-safe via RWMutex; all reads return copies.
type InMemoryStore struct {
	mu           sync.RWMutex
	records      map[string][]Record            // sessionID -> records ordered by OccurredAt
	organizer    map[string][]OrganizerActivity // sessionID -> organizer events
	metadata     map[string]SessionMetadata
	participants map[string]map[string]struct{} // sessionID -> joined participant IDs
}

// NewInMemoryStore creates an empty in-memory activity store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:      make(map[string][]Record),
		organizer:    make(map[string][]OrganizerActivity),
		metadata:     make(map[string]SessionMetadata),
		participants: make(map[string]map[string]struct{}),
	}
}

// RecordActivity appends a record, keeping the session's history time-ordered.
func (s *InMemoryStore) RecordActivity(_ context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.records[rec.SessionID]
	i := sort.Search(len(list), func(i int) bool {
		return list[i].OccurredAt.After(rec.OccurredAt)
	})
	list = append(list, Record{})
	copy(list[i+1:], list[i:])
	list[i] = copyRecord(rec)
	s.records[rec.SessionID] = list
	return nil
}

// RecordOrganizerActivity appends an organizer content-creation event.
func (s *InMemoryStore) RecordOrganizerActivity(sessionID string, a OrganizerActivity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.organizer[sessionID] = append(s.organizer[sessionID], a)
}

// SetSessionMetadata stores or replaces a session's metadata.
func (s *InMemoryStore) SetSessionMetadata(sessionID string, meta SessionMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[sessionID] = meta
}

// AddParticipant records that a participant joined, independent of activity.
func (s *InMemoryStore) AddParticipant(sessionID, participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.participants[sessionID] == nil {
		s.participants[sessionID] = make(map[string]struct{})
	}
	s.participants[sessionID][participantID] = struct{}{}
}

// GetActivityRecords returns a copy of the session's records, oldest first.
func (s *InMemoryStore) GetActivityRecords(_ context.Context, sessionID string, since *time.Time) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.records[sessionID]
	out := make([]Record, 0, len(list))
	for _, r := range list {
		if since != nil && r.OccurredAt.Before(*since) {
			continue
		}
		out = append(out, copyRecord(r))
	}
	return out, nil
}

// GetOrganizerActivity returns the session's organizer events, oldest first.
func (s *InMemoryStore) GetOrganizerActivity(_ context.Context, sessionID string) ([]OrganizerActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]OrganizerActivity, len(s.organizer[sessionID]))
	copy(out, s.organizer[sessionID])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out, nil
}

// GetSessionMetadata returns ErrSessionNotFound for unknown sessions.
func (s *InMemoryStore) GetSessionMetadata(_ context.Context, sessionID string) (*SessionMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.metadata[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if meta.StartedAt != nil {
		started := *meta.StartedAt
		meta.StartedAt = &started
	}
	return &meta, nil
}

// GetTotalParticipantCount counts joined participants plus anyone with a record.
func (s *InMemoryStore) GetTotalParticipantCount(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.participants[sessionID]))
	for id := range s.participants[sessionID] {
		seen[id] = struct{}{}
	}
	for _, r := range s.records[sessionID] {
		seen[r.ParticipantID] = struct{}{}
	}
	return len(seen), nil
}

// GetLeaderboardRankPercentile ranks the participant by total score within the session.
func (s *InMemoryStore) GetLeaderboardRankPercentile(_ context.Context, participantID, sessionID string) (float64, error) {
	s.mu.RLock()
	standings := Leaderboard(s.records[sessionID])
	s.mu.RUnlock()

	for _, st := range standings {
		if st.ParticipantID == participantID {
			return RankPercentile(st.Rank, len(standings)), nil
		}
	}
	return 0, ErrParticipantNotRanked
}

func copyRecord(r Record) Record {
	if r.Metadata != nil {
		meta := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		r.Metadata = meta
	}
	return r
}
