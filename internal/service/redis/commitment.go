package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ticket_ledger/internal/model"
)

// CommitmentCache remembers the last root handed out per ticket. It is
// advisory: the root can always be recomputed from the message store.
type CommitmentCache struct {
	svc *RedisService
	ttl time.Duration
}

func NewCommitmentCache(svc *RedisService, ttl time.Duration) *CommitmentCache {
	return &CommitmentCache{svc: svc, ttl: ttl}
}

func commitmentKey(ticketID string) string {
	return fmt.Sprintf("commitment: %s", ticketID)
}

func (c *CommitmentCache) SaveCommitment(ctx context.Context, cm *model.Commitment) error {
	data, err := json.Marshal(cm)
	if err != nil {
		return err
	}
	return c.svc.Set(ctx, commitmentKey(cm.TicketID), data, c.ttl)
}

// GetCommitment returns nil, nil when nothing is cached.
func (c *CommitmentCache) GetCommitment(ctx context.Context, ticketID string) (*model.Commitment, error) {
	v, err := c.svc.Get(ctx, commitmentKey(ticketID))
	if err == redis.Nil {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var cm model.Commitment
	if err := json.Unmarshal([]byte(v), &cm); err != nil {
		return nil, err
	}
	return &cm, nil
}
