package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/menumarket/menumarket/internal/logging"
)

// ErrInvalidCredentials is returned for both unknown identifiers and wrong passwords.
var ErrInvalidCredentials = errors.New("invalid credentials")

const lastLoginTimeout = 2 * time.Second

// Service manages identity lifecycle and verifies credentials.
type Service struct {
	repo      Repository
	logger    *slog.Logger
	cost      int
	dummyHash []byte
	now       func() time.Time
	pending   sync.WaitGroup
}

// Option customises a Service.
type Option func(*Service)

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new identity service.
func NewService(repo Repository, logger *slog.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		repo:   repo,
		logger: logging.Component(logger, "identity"),
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	// Unknown identifiers are compared against this hash so a miss costs as much as a hit.
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.cost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

// Register creates a new user and stores a hashed password.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = normalizeEmail(reg.Email)
	if err := reg.Validate(); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           uuid.New().String(),
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	return user, nil
}

// Authenticate verifies a password against the stored credential. Unknown
// identifiers and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	if err := creds.Validate(); err != nil {
		return User{}, ErrInvalidCredentials
	}

	user, err := s.lookup(ctx, strings.TrimSpace(creds.Identifier))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(creds.Password))
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	s.touchLastLogin(ctx, user.ID)
	return user, nil
}

// Get resolves a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// Remove deletes a user. Registration uses it to undo a signup whose coin
// account could not be opened.
func (s *Service) Remove(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Wait blocks until background last-login writes have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) lookup(ctx context.Context, identifier string) (User, error) {
	if strings.Contains(identifier, "@") {
		return s.repo.FindByEmail(ctx, identifier)
	}
	return s.repo.FindByUsername(ctx, identifier)
}

// touchLastLogin is best effort and never delays the login response.
func (s *Service) touchLastLogin(ctx context.Context, id string) {
	at := s.now()
	bg := context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(bg, lastLoginTimeout)
		defer cancel()
		if err := s.repo.TouchLastLogin(ctx, id, at); err != nil {
			s.logger.Warn("last login update failed", slog.String("user_id", id), slog.Any("error", err))
		}
	}()
}
