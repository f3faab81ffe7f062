package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no menu matches the id.
var ErrNotFound = errors.New("menu not found")

// Repository persists menus.
type Repository interface {
	Create(ctx context.Context, menu Menu) error
	Get(ctx context.Context, id string) (Menu, error)
	List(ctx context.Context, limit, offset int) ([]Menu, error)
}

// PostgresRepository stores menus in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a menu record.
func (r *PostgresRepository) Create(ctx context.Context, menu Menu) error {
	menuID, err := uuid.Parse(menu.ID)
	if err != nil {
		return err
	}
	authorID, err := uuid.Parse(menu.AuthorID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO menus (id, author_id, title, price, content_ref, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, menuID, authorID, menu.Title, menu.Price, menu.ContentRef, menu.CreatedAt.UTC())
	return err
}

// Get fetches a menu by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Menu, error) {
	menuID, err := uuid.Parse(id)
	if err != nil {
		return Menu{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, author_id, title, price, content_ref, created_at
        FROM menus WHERE id = $1`, menuID)
	menu, err := scanMenu(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Menu{}, ErrNotFound
	}
	return menu, err
}

// List returns menus newest first.
func (r *PostgresRepository) List(ctx context.Context, limit, offset int) ([]Menu, error) {
	rows, err := r.db.Query(ctx, `SELECT id, author_id, title, price, content_ref, created_at
        FROM menus ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var menus []Menu
	for rows.Next() {
		menu, err := scanMenu(rows)
		if err != nil {
			return nil, err
		}
		menus = append(menus, menu)
	}
	return menus, rows.Err()
}

func scanMenu(row pgx.Row) (Menu, error) {
	var (
		m         Menu
		idVal     uuid.UUID
		authorID  *uuid.UUID
		createdAt time.Time
	)
	if err := row.Scan(&idVal, &authorID, &m.Title, &m.Price, &m.ContentRef, &createdAt); err != nil {
		return Menu{}, err
	}
	m.ID = idVal.String()
	if authorID != nil {
		m.AuthorID = authorID.String()
	}
	m.CreatedAt = createdAt.UTC()
	return m, nil
}
