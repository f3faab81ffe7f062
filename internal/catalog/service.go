package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/menumarket/menumarket/internal/entitlement"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ErrLocked is returned when the viewer has not unlocked a paid menu.
var ErrLocked = errors.New("menu is locked")

// GrantFinder reports whether an identity owns an item.
type GrantFinder interface {
	FindGrant(ctx context.Context, identityID, itemID string) (entitlement.Grant, error)
}

// Service exposes catalog operations.
type Service struct {
	repo   Repository
	grants GrantFinder
	now    func() time.Time
}

// NewService builds a catalog service instance.
func NewService(repo Repository, grants GrantFinder) *Service {
	return &Service{repo: repo, grants: grants, now: time.Now}
}

// Create publishes a menu.
func (s *Service) Create(ctx context.Context, input CreateInput) (Menu, error) {
	if err := input.Validate(); err != nil {
		return Menu{}, err
	}
	menu := Menu{
		ID:         uuid.New().String(),
		AuthorID:   input.AuthorID,
		Title:      input.Title,
		Price:      input.Price,
		ContentRef: input.ContentRef,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.Create(ctx, menu); err != nil {
		return Menu{}, err
	}
	return menu, nil
}

// Get retrieves menu metadata.
func (s *Service) Get(ctx context.Context, id string) (Menu, error) {
	return s.repo.Get(ctx, id)
}

// List pages through the catalog.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Menu, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// Content returns the content reference when the viewer may read it: the menu is
// free, the viewer wrote it, or the viewer holds a grant.
func (s *Service) Content(ctx context.Context, menuID, viewerID string) (string, error) {
	menu, err := s.repo.Get(ctx, menuID)
	if err != nil {
		return "", err
	}
	if menu.Free() || (viewerID != "" && menu.AuthorID == viewerID) {
		return menu.ContentRef, nil
	}
	if _, err := s.grants.FindGrant(ctx, viewerID, menuID); err != nil {
		if errors.Is(err, entitlement.ErrGrantNotFound) {
			return "", ErrLocked
		}
		return "", err
	}
	return menu.ContentRef, nil
}
