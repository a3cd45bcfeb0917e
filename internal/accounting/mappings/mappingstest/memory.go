// Package mappingstest provides an in-memory mapping repository for tests.
package mappingstest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/ledger-core/internal/accounting/mappings"
)

// Repository mirrors the database constraints on account_mappings.
type Repository struct {
	mu     sync.Mutex
	items  map[int64]mappings.AccountMapping
	nextID int64
}

// NewRepository returns an empty repository.
func NewRepository() *Repository {
	return &Repository{items: make(map[int64]mappings.AccountMapping)}
}

// Put inserts a mapping bypassing service checks.
func (r *Repository) Put(module, key string, accountID int64) mappings.AccountMapping {
	m, err := r.Insert(context.Background(), mappings.CreateInput{Module: module, Key: key, AccountID: accountID})
	if err != nil {
		panic(err)
	}
	return m
}

func (r *Repository) Get(ctx context.Context, module, key string) (mappings.AccountMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.items {
		if m.Module == module && m.Key == key {
			return m, nil
		}
	}
	return mappings.AccountMapping{}, mappings.ErrMappingNotFound
}

func (r *Repository) GetByID(ctx context.Context, id int64) (mappings.AccountMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok {
		return mappings.AccountMapping{}, mappings.ErrMappingNotFound
	}
	return m, nil
}

func (r *Repository) List(ctx context.Context, module string) ([]mappings.AccountMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []mappings.AccountMapping
	for _, m := range r.items {
		if module == "" || m.Module == module {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (r *Repository) FindByAccount(ctx context.Context, module string, accountID int64) ([]mappings.AccountMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []mappings.AccountMapping
	for _, m := range r.items {
		if m.Module == module && m.AccountID == accountID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *Repository) Insert(ctx context.Context, in mappings.CreateInput) (mappings.AccountMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.items {
		if m.Module == in.Module && m.Key == in.Key {
			return mappings.AccountMapping{}, mappings.ErrDuplicateKey
		}
		if in.Module == mappings.ModuleTreasury && m.Module == mappings.ModuleTreasury && m.AccountID == in.AccountID {
			return mappings.AccountMapping{}, mappings.ErrSharedAccount
		}
	}
	r.nextID++
	now := time.Now()
	m := mappings.AccountMapping{
		ID:          r.nextID,
		Module:      in.Module,
		Key:         in.Key,
		AccountID:   in.AccountID,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.items[m.ID] = m
	return m, nil
}

func (r *Repository) UpdateAccount(ctx context.Context, id, accountID int64) (mappings.AccountMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok {
		return mappings.AccountMapping{}, mappings.ErrMappingNotFound
	}
	m.AccountID = accountID
	m.UpdatedAt = time.Now()
	r.items[id] = m
	return m, nil
}
