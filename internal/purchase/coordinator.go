package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/menumarket/menumarket/internal/catalog"
	"github.com/menumarket/menumarket/internal/entitlement"
	"github.com/menumarket/menumarket/internal/logging"
	"github.com/menumarket/menumarket/internal/metrics"
	"github.com/menumarket/menumarket/internal/notification"
)

const (
	defaultStoreTimeout = 3 * time.Second
	defaultLockWait     = 5 * time.Second
	maxAttempts         = 2
	operatorDestination = "operations"
)

// ItemReader loads purchasable items.
type ItemReader interface {
	Get(ctx context.Context, id string) (catalog.Menu, error)
}

// Recorder receives purchase metrics.
type Recorder interface {
	Purchase(outcome string, amount int64, took time.Duration)
	RollbackFailure()
}

// Coordinator runs the purchase transaction: check the account, check the item,
// debit the price and record the grant as one unit.
type Coordinator struct {
	store        entitlement.Store
	items        ItemReader
	locker       Locker
	notifier     notification.Notifier
	recorder     Recorder
	logger       *slog.Logger
	storeTimeout time.Duration
	lockWait     time.Duration
	now          func() time.Time
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithLocker replaces the in-process lock, e.g. with a RedisLocker.
func WithLocker(l Locker) Option { return func(c *Coordinator) { c.locker = l } }

// WithNotifier sets the notifier for unlock confirmations and operator alerts.
func WithNotifier(n notification.Notifier) Option { return func(c *Coordinator) { c.notifier = n } }

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option { return func(c *Coordinator) { c.recorder = r } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logging.Component(l, "purchase") }
}

// WithStoreTimeout bounds every store call.
func WithStoreTimeout(d time.Duration) Option { return func(c *Coordinator) { c.storeTimeout = d } }

// WithLockWait bounds how long a purchase waits for the identity lock.
func WithLockWait(d time.Duration) Option { return func(c *Coordinator) { c.lockWait = d } }

// WithClock overrides the time source used for grant timestamps.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// NewCoordinator builds a Coordinator over store and items.
func NewCoordinator(store entitlement.Store, items ItemReader, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:        store,
		items:        items,
		locker:       NewKeyedMutex(),
		logger:       logging.Component(nil, "purchase"),
		storeTimeout: defaultStoreTimeout,
		lockWait:     defaultLockWait,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Purchase unlocks itemID for identityID. Buying an owned item is not an error:
// the stored receipt is returned with Replayed set and nothing is debited.
func (c *Coordinator) Purchase(ctx context.Context, identityID, itemID string) (receipt Receipt, err error) {
	started := time.Now()
	defer func() { c.observe(receipt, err, time.Since(started)) }()

	lockCtx, cancel := context.WithTimeout(ctx, c.lockWait)
	unlock, err := c.locker.Lock(lockCtx, identityID)
	cancel()
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", entitlement.ErrStoreUnavailable, err)
	}
	defer unlock()

	var account entitlement.Account
	if err := c.retry(ctx, "load account", func(ctx context.Context) error {
		var err error
		account, err = c.store.Account(ctx, identityID)
		return err
	}); err != nil {
		return Receipt{}, err
	}

	var item catalog.Menu
	if err := c.retry(ctx, "load item", func(ctx context.Context) error {
		var err error
		item, err = c.items.Get(ctx, itemID)
		if errors.Is(err, catalog.ErrNotFound) {
			return entitlement.ErrItemNotFound
		}
		return err
	}); err != nil {
		return Receipt{}, err
	}

	var existing entitlement.Grant
	err = c.retry(ctx, "find grant", func(ctx context.Context) error {
		var err error
		existing, err = c.store.FindGrant(ctx, identityID, itemID)
		return err
	})
	switch {
	case err == nil:
		return receiptFrom(existing, true), nil
	case !errors.Is(err, entitlement.ErrGrantNotFound):
		return Receipt{}, err
	}

	if account.Coins < item.Price {
		return Receipt{}, entitlement.ErrInsufficientCoins
	}

	// Once the debit starts it runs to completion even if the caller goes away.
	var grant entitlement.Grant
	err = c.retry(context.WithoutCancel(ctx), "debit and grant", func(ctx context.Context) error {
		var err error
		grant, err = c.store.DebitAndGrant(ctx, identityID, itemID, item.Price, c.now())
		return err
	})
	switch {
	case err == nil:
		c.notify(ctx, notification.Message{
			Kind:        notification.KindMenuUnlocked,
			Destination: identityID,
			Body:        fmt.Sprintf("Unlocked %q for %d coins. Balance: %d coins", item.Title, grant.Amount, grant.BalanceAfter),
		})
		return receiptFrom(grant, false), nil
	case errors.Is(err, entitlement.ErrGrantExists):
		return receiptFrom(grant, true), nil
	case errors.Is(err, entitlement.ErrRollbackFailed):
		c.alertRollback(ctx, identityID, itemID, item.Price, err)
		return Receipt{}, err
	default:
		return Receipt{}, err
	}
}

// retry runs fn with a per-call timeout and one retry for transient failures.
// Failures that survive the retry are reported as ErrStoreUnavailable.
func (c *Coordinator) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
		err = fn(callCtx)
		cancel()
		if err == nil || !transient(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("store call failed", slog.String("op", op), slog.Int("attempt", attempt), slog.Any("error", err))
	}
	return fmt.Errorf("%w: %s: %v", entitlement.ErrStoreUnavailable, op, err)
}

func transient(err error) bool {
	for _, domain := range []error{
		entitlement.ErrIdentityNotFound,
		entitlement.ErrItemNotFound,
		entitlement.ErrInsufficientCoins,
		entitlement.ErrGrantExists,
		entitlement.ErrGrantNotFound,
		entitlement.ErrInvalidAmount,
		entitlement.ErrRollbackFailed,
		entitlement.ErrStoreUnavailable,
	} {
		if errors.Is(err, domain) {
			return false
		}
	}
	return true
}

func (c *Coordinator) alertRollback(ctx context.Context, identityID, itemID string, amount int64, err error) {
	c.logger.Error("purchase rollback failed",
		slog.String("user_id", identityID),
		slog.String("item_id", itemID),
		slog.Int64("amount", amount),
		slog.Any("error", err),
	)
	if c.recorder != nil {
		c.recorder.RollbackFailure()
	}
	c.notify(ctx, notification.Message{
		Kind:        notification.KindRollbackFailure,
		Destination: operatorDestination,
		Body:        fmt.Sprintf("identity %s was debited %d coins for %s without a grant: %v", identityID, amount, itemID, err),
	})
}

func (c *Coordinator) notify(ctx context.Context, msg notification.Message) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Send(context.WithoutCancel(ctx), msg); err != nil {
		c.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}

func (c *Coordinator) observe(r Receipt, err error, took time.Duration) {
	if c.recorder == nil {
		return
	}
	outcome := metrics.OutcomeGranted
	switch {
	case err == nil && r.Replayed:
		outcome = metrics.OutcomeReplayed
	case errors.Is(err, entitlement.ErrInsufficientCoins):
		outcome = metrics.OutcomeInsufficient
	case errors.Is(err, entitlement.ErrIdentityNotFound), errors.Is(err, entitlement.ErrItemNotFound):
		outcome = metrics.OutcomeNotFound
	case err != nil:
		outcome = metrics.OutcomeError
	}
	c.recorder.Purchase(outcome, r.Amount, took)
}
