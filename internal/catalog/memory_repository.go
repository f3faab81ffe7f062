package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Menu
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Menu)}
}

func (r *memoryRepository) Create(_ context.Context, menu Menu) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[menu.ID]; exists {
		return errors.New("menu exists")
	}
	r.storage[menu.ID] = menu
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Menu, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	menu, ok := r.storage[id]
	if !ok {
		return Menu{}, ErrNotFound
	}
	return menu, nil
}

func (r *memoryRepository) List(_ context.Context, limit, offset int) ([]Menu, error) {
	r.mu.RLock()
	menus := make([]Menu, 0, len(r.storage))
	for _, m := range r.storage {
		menus = append(menus, m)
	}
	r.mu.RUnlock()

	sort.Slice(menus, func(i, j int) bool {
		if menus[i].CreatedAt.Equal(menus[j].CreatedAt) {
			return menus[i].ID < menus[j].ID
		}
		return menus[i].CreatedAt.After(menus[j].CreatedAt)
	})
	if offset >= len(menus) {
		return nil, nil
	}
	menus = menus[offset:]
	if limit < len(menus) {
		menus = menus[:limit]
	}
	return menus, nil
}
