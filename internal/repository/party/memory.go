package party

import (
	"context"
	"sync"

	"ticket_ledger/internal/model"
)

type (
	MemoryRepo struct {
		mu      sync.RWMutex
		parties map[string]model.Party
	}
)

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		parties: make(map[string]model.Party),
	}
}

func (r *MemoryRepo) GetByName(ctx context.Context, name string) (*model.Party, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.parties[name]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *MemoryRepo) GetByPublicID(ctx context.Context, publicID string) (*model.Party, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.parties {
		if p.PublicID == publicID {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepo) Create(ctx context.Context, party *model.Party) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.parties[party.Name]; ok {
		return model.ErrDuplicateName
	}
	r.parties[party.Name] = *party
	return nil
}
