package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"ticket_ledger/internal/model"
)

// Inbox queues notifications for parties that are not connected.
type Inbox struct {
	svc *RedisService
}

func NewInbox(svc *RedisService) *Inbox {
	return &Inbox{svc: svc}
}

func inboxKey(publicID string) string {
	return fmt.Sprintf("inbox: %s", publicID)
}

func (i *Inbox) Put(ctx context.Context, publicID string, notifications ...*model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	vals := make([]any, 0, len(notifications))
	for _, n := range notifications {
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		vals = append(vals, data)
	}

	return i.svc.RPush(ctx, inboxKey(publicID), vals...)
}

// Drain returns and clears everything queued for publicID, oldest first.
func (i *Inbox) Drain(ctx context.Context, publicID string) ([]*model.Notification, error) {
	vals, err := i.svc.LDrain(ctx, inboxKey(publicID))
	if err != nil {
		return nil, err
	}

	res := make([]*model.Notification, 0, len(vals))
	for _, v := range vals {
		var n model.Notification
		if err := json.Unmarshal([]byte(v), &n); err != nil {
			return nil, err
		}
		res = append(res, &n)
	}
	return res, nil
}
