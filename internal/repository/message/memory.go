package message

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"ticket_ledger/internal/model"
)

type (
	// MemoryRepo keeps messages in process. Ids are decimal sequence
	// numbers in insertion order.
	MemoryRepo struct {
		mu       sync.RWMutex
		seq      int
		messages []*model.Message
		byID     map[string]*model.Message
	}
)

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID: make(map[string]*model.Message),
	}
}

func (r *MemoryRepo) Append(ctx context.Context, msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages {
		if m.TicketID == msg.TicketID && m.Digest == msg.Digest {
			return fmt.Errorf("%w: %s", model.ErrDuplicateDigest, msg.Digest)
		}
	}

	r.seq++
	msg.ID = strconv.Itoa(r.seq)
	stored := clone(msg)
	r.messages = append(r.messages, stored)
	r.byID[stored.ID] = stored
	return nil
}

func (r *MemoryRepo) ListByTicket(ctx context.Context, ticketID string) ([]*model.Message, error) {
	return r.filter(func(m *model.Message) bool { return m.TicketID == ticketID }), nil
}

func (r *MemoryRepo) ListByRecipient(ctx context.Context, publicID string) ([]*model.Message, error) {
	return r.filter(func(m *model.Message) bool { return m.HasRecipient(publicID) }), nil
}

func (r *MemoryRepo) SetVerification(ctx context.Context, id string, state model.VerificationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: message %s", model.ErrNotFound, id)
	}
	m.Verification = state
	return nil
}

func (r *MemoryRepo) filter(keep func(*model.Message) bool) []*model.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Message
	for _, m := range r.messages {
		if keep(m) {
			out = append(out, clone(m))
		}
	}
	return out
}

func clone(m *model.Message) *model.Message {
	cp := *m
	if m.ParentID != nil {
		p := *m.ParentID
		cp.ParentID = &p
	}
	cp.RecipientKeys = append([]model.RecipientKey(nil), m.RecipientKeys...)
	return &cp
}
