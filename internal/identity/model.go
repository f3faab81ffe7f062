package identity

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// User represents a registered marketplace member.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Credentials carries a login attempt. Identifier is a username or an email.
type Credentials struct {
	Identifier string
	Password   string
}

// Validate checks the login payload shape only; it never reveals whether the identity exists.
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Identifier, validation.Required, validation.Length(1, 254)),
		validation.Field(&c.Password, validation.Required, validation.Length(1, maxPasswordLen)),
	)
}

// Registration request structure.
type Registration struct {
	Username string
	Email    string
	Password string
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// bcrypt ignores input past 72 bytes.
const maxPasswordLen = 72

// Validate applies the basic field rules for a new account.
func (r Registration) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 32), validation.Match(usernamePattern)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, maxPasswordLen)),
	)
}
