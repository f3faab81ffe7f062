package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/menumarket/menumarket/internal/entitlement"
)

func TestServiceCreateAndContent(t *testing.T) {
	ctx := context.Background()
	store := entitlement.NewInMemory()
	svc := NewService(NewMemoryRepository(), store)

	author := uuid.NewString()
	reader := uuid.NewString()
	entitlement.SeedCoins(store, reader, 100)

	menu, err := svc.Create(ctx, CreateInput{AuthorID: author, Title: "Bun cha Ha Noi", Price: 60, ContentRef: "menus/bun-cha.md"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Content(ctx, menu.ID, reader); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected locked, got %v", err)
	}

	ref, err := svc.Content(ctx, menu.ID, author)
	if err != nil || ref != "menus/bun-cha.md" {
		t.Fatalf("author should read own menu, got %q %v", ref, err)
	}

	if _, err := store.DebitAndGrant(ctx, reader, menu.ID, menu.Price, time.Now()); err != nil {
		t.Fatalf("grant: %v", err)
	}
	ref, err = svc.Content(ctx, menu.ID, reader)
	if err != nil || ref != "menus/bun-cha.md" {
		t.Fatalf("expected unlocked content, got %q %v", ref, err)
	}
}

func TestServiceFreeMenuIsOpen(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository(), entitlement.NewInMemory())

	menu, err := svc.Create(ctx, CreateInput{AuthorID: uuid.NewString(), Title: "Com rang", Price: 0, ContentRef: "menus/com-rang.md"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Content(ctx, menu.ID, ""); err != nil {
		t.Fatalf("free menu should be readable: %v", err)
	}
}

func TestServiceCreateValidation(t *testing.T) {
	svc := NewService(NewMemoryRepository(), entitlement.NewInMemory())
	if _, err := svc.Create(context.Background(), CreateInput{AuthorID: uuid.NewString(), Title: "", Price: -1}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestServiceListPaging(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository(), entitlement.NewInMemory())
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		svc.now = func() time.Time { return at }
		if _, err := svc.Create(ctx, CreateInput{AuthorID: uuid.NewString(), Title: "Menu", Price: 10, ContentRef: "ref"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, err := svc.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || !page[0].CreatedAt.After(page[1].CreatedAt) {
		t.Fatalf("expected newest-first page of 2, got %+v", page)
	}
	rest, _ := svc.List(ctx, 2, 2)
	if len(rest) != 1 {
		t.Fatalf("expected 1 remaining menu, got %d", len(rest))
	}
}
