package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// PostgresStore persists balances and grants in PostgreSQL. Every mutation runs in
// one transaction holding the account row lock.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenAccount creates the coin account if it does not exist yet.
func (s *PostgresStore) OpenAccount(ctx context.Context, identityID string, coins int64) error {
	userID, err := uuid.Parse(identityID)
	if err != nil {
		return ErrIdentityNotFound
	}
	_, err = s.db.Exec(ctx, `INSERT INTO coin_accounts (user_id, coins) VALUES ($1, $2)
        ON CONFLICT (user_id) DO NOTHING`, userID, coins)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return ErrIdentityNotFound
		}
		return err
	}
	return nil
}

// Account returns the balance and granted item ids.
func (s *PostgresStore) Account(ctx context.Context, identityID string) (Account, error) {
	userID, err := uuid.Parse(identityID)
	if err != nil {
		return Account{}, ErrIdentityNotFound
	}
	const query = `
        SELECT a.coins, COALESCE(array_agg(g.menu_id::text ORDER BY g.menu_id) FILTER (WHERE g.menu_id IS NOT NULL), '{}')
        FROM coin_accounts a
        LEFT JOIN grants g ON g.user_id = a.user_id
        WHERE a.user_id = $1
        GROUP BY a.coins`
	acct := Account{IdentityID: identityID}
	if err := s.db.QueryRow(ctx, query, userID).Scan(&acct.Coins, &acct.GrantedItemIDs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrIdentityNotFound
		}
		return Account{}, err
	}
	return acct, nil
}

// FindGrant returns the grant for the pair, or ErrGrantNotFound.
func (s *PostgresStore) FindGrant(ctx context.Context, identityID, itemID string) (Grant, error) {
	userID, menuID, err := parsePair(identityID, itemID)
	if err != nil {
		return Grant{}, ErrGrantNotFound
	}
	return grantForPair(ctx, s.db, userID, menuID)
}

// Grants lists the identity's grants, oldest first.
func (s *PostgresStore) Grants(ctx context.Context, identityID string) ([]Grant, error) {
	userID, err := uuid.Parse(identityID)
	if err != nil {
		return nil, ErrIdentityNotFound
	}
	rows, err := s.db.Query(ctx, `SELECT menu_id, amount, balance_after, granted_at FROM grants
        WHERE user_id = $1 ORDER BY granted_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Grant
	for rows.Next() {
		var (
			menuID uuid.UUID
			g      Grant
		)
		if err := rows.Scan(&menuID, &g.Amount, &g.BalanceAfter, &g.GrantedAt); err != nil {
			return nil, err
		}
		g.IdentityID = identityID
		g.ItemID = menuID.String()
		g.GrantedAt = g.GrantedAt.UTC()
		out = append(out, g)
	}
	return out, rows.Err()
}

// DebitAndGrant debits the account and inserts the grant in one transaction.
// An existing grant is returned with ErrGrantExists and nothing is debited.
func (s *PostgresStore) DebitAndGrant(ctx context.Context, identityID, itemID string, amount int64, at time.Time) (Grant, error) {
	if amount < 0 {
		return Grant{}, ErrInvalidAmount
	}
	userID, menuID, err := parsePair(identityID, itemID)
	if err != nil {
		return Grant{}, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Grant{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	coins, err := lockAccount(ctx, tx, userID)
	if err != nil {
		return Grant{}, err
	}

	existing, err := grantForPair(ctx, tx, userID, menuID)
	if err == nil {
		return existing, ErrGrantExists
	}
	if !errors.Is(err, ErrGrantNotFound) {
		return Grant{}, err
	}

	if coins < amount {
		return Grant{}, ErrInsufficientCoins
	}

	var balance int64
	if err := tx.QueryRow(ctx, `UPDATE coin_accounts SET coins = coins - $1, updated_at = now()
        WHERE user_id = $2 RETURNING coins`, amount, userID).Scan(&balance); err != nil {
		return Grant{}, err
	}

	grant := Grant{IdentityID: identityID, ItemID: itemID, Amount: amount, BalanceAfter: balance, GrantedAt: at.UTC()}
	if _, err := tx.Exec(ctx, `INSERT INTO grants (user_id, menu_id, amount, balance_after, granted_at)
        VALUES ($1, $2, $3, $4, $5)`, userID, menuID, amount, balance, grant.GrantedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return Grant{}, ErrItemNotFound
		}
		return Grant{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Grant{}, err
	}
	return grant, nil
}

// TopUp credits coins once per client transaction id.
func (s *PostgresStore) TopUp(ctx context.Context, identityID, clientTxID string, amount int64, at time.Time) (TopUpResult, error) {
	if amount <= 0 {
		return TopUpResult{}, ErrInvalidAmount
	}
	userID, err := uuid.Parse(identityID)
	if err != nil {
		return TopUpResult{}, ErrIdentityNotFound
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TopUpResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := lockAccount(ctx, tx, userID); err != nil {
		return TopUpResult{}, err
	}

	existing, err := topUpFor(ctx, tx, userID, clientTxID)
	if err == nil {
		return existing, ErrDuplicateTopUp
	}
	if !errors.Is(err, ErrTopUpNotFound) {
		return TopUpResult{}, err
	}

	var balance int64
	if err := tx.QueryRow(ctx, `UPDATE coin_accounts SET coins = coins + $1, updated_at = now()
        WHERE user_id = $2 RETURNING coins`, amount, userID).Scan(&balance); err != nil {
		return TopUpResult{}, err
	}

	txID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO topups (id, user_id, client_tx_id, amount, balance_after, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, txID, userID, clientTxID, amount, balance, at.UTC()); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return TopUpResult{}, ErrDuplicateTopUp
		}
		return TopUpResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return TopUpResult{}, err
	}

	return TopUpResult{TransactionID: txID.String(), IdentityID: identityID, Amount: amount, Balance: balance, CreatedAt: at.UTC()}, nil
}

// FindTopUp returns the credit previously applied for the identity's client transaction id.
func (s *PostgresStore) FindTopUp(ctx context.Context, identityID, clientTxID string) (TopUpResult, error) {
	userID, err := uuid.Parse(identityID)
	if err != nil {
		return TopUpResult{}, ErrTopUpNotFound
	}
	return topUpFor(ctx, s.db, userID, clientTxID)
}

func topUpFor(ctx context.Context, q queryRower, userID uuid.UUID, clientTxID string) (TopUpResult, error) {
	const query = `SELECT id, amount, balance_after, created_at FROM topups WHERE user_id = $1 AND client_tx_id = $2`
	var (
		id  uuid.UUID
		res TopUpResult
	)
	if err := q.QueryRow(ctx, query, userID, clientTxID).Scan(&id, &res.Amount, &res.Balance, &res.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TopUpResult{}, ErrTopUpNotFound
		}
		return TopUpResult{}, err
	}
	res.TransactionID = id.String()
	res.IdentityID = userID.String()
	res.CreatedAt = res.CreatedAt.UTC()
	return res, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func lockAccount(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (int64, error) {
	var coins int64
	if err := tx.QueryRow(ctx, `SELECT coins FROM coin_accounts WHERE user_id = $1 FOR UPDATE`, userID).Scan(&coins); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrIdentityNotFound
		}
		return 0, err
	}
	return coins, nil
}

func grantForPair(ctx context.Context, q queryRower, userID, menuID uuid.UUID) (Grant, error) {
	const query = `SELECT amount, balance_after, granted_at FROM grants WHERE user_id = $1 AND menu_id = $2`
	g := Grant{IdentityID: userID.String(), ItemID: menuID.String()}
	if err := q.QueryRow(ctx, query, userID, menuID).Scan(&g.Amount, &g.BalanceAfter, &g.GrantedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Grant{}, ErrGrantNotFound
		}
		return Grant{}, err
	}
	g.GrantedAt = g.GrantedAt.UTC()
	return g, nil
}

func parsePair(identityID, itemID string) (uuid.UUID, uuid.UUID, error) {
	userID, err := uuid.Parse(identityID)
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrIdentityNotFound
	}
	menuID, err := uuid.Parse(itemID)
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrItemNotFound
	}
	return userID, menuID, nil
}
