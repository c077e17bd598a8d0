package badge

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisAwardStore keeps each session's awards in one hash, keyed
// "badges:{session}" with fields "{participant}:{badge}". HSETNX gives
// exactly-once creation.
type RedisAwardStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisAwardStore creates a store using the default "badges" key prefix.
func NewRedisAwardStore(client redis.Cmdable) *RedisAwardStore {
	return &RedisAwardStore{client: client, prefix: "badges"}
}

func (s *RedisAwardStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func field(participantID, badgeID string) string {
	return participantID + ":" + badgeID
}

// HasBadge reports whether the award field exists.
func (s *RedisAwardStore) HasBadge(ctx context.Context, participantID, sessionID, badgeID string) (bool, error) {
	ok, err := s.client.HExists(ctx, s.key(sessionID), field(participantID, badgeID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check badge award: %w", err)
	}
	return ok, nil
}

// CreateBadgeAward sets the award field only if it is absent.
func (s *RedisAwardStore) CreateBadgeAward(ctx context.Context, award Award) (CreateResult, error) {
	if err := award.validate(); err != nil {
		return 0, err
	}
	raw, err := json.Marshal(award)
	if err != nil {
		return 0, fmt.Errorf("failed to encode badge award: %w", err)
	}

	set, err := s.client.HSetNX(ctx, s.key(award.SessionID), field(award.ParticipantID, award.BadgeID), raw).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to create badge award: %w", err)
	}
	if !set {
		return AlreadyExists, nil
	}
	return Created, nil
}

// ListSessionAwards decodes every award in the session hash, ordered by EarnedAt.
func (s *RedisAwardStore) ListSessionAwards(ctx context.Context, sessionID string) ([]Award, error) {
	values, err := s.client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list badge awards: %w", err)
	}

	awards := make([]Award, 0, len(values))
	for f, v := range values {
		var a Award
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			return nil, fmt.Errorf("failed to decode badge award %q: %w", f, err)
		}
		awards = append(awards, a)
	}
	sortAwards(awards)
	return awards, nil
}
