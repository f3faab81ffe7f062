package catalog

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Menu is a premium recipe menu that members unlock with coins. Menus are
// immutable once created.
type Menu struct {
	ID         string
	AuthorID   string
	Title      string
	Price      int64
	ContentRef string
	CreatedAt  time.Time
}

// Free reports whether the menu can be read without unlocking.
func (m Menu) Free() bool {
	return m.Price == 0
}

// CreateInput captures data required to publish a menu.
type CreateInput struct {
	AuthorID   string
	Title      string
	Price      int64
	ContentRef string
}

// Validate checks the publish payload.
func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.AuthorID, validation.Required),
		validation.Field(&in.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Price, validation.Min(int64(0))),
		validation.Field(&in.ContentRef, validation.Required, validation.Length(1, 2048)),
	)
}
