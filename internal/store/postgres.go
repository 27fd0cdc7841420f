package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/handlepay/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate row")

type Store struct {
	Db *pgxpool.Pool
}

func NewStore(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Db: pool}, nil
}

func (s *Store) Close() {
	s.Db.Close()
}

const accountColumns = `id, username, email, COALESCE(starknet_address, ''), created_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Handle, &a.Email, &a.SettlementAddress, &a.CreatedAt)
	return a, err
}

// FindAccountsByHandle returns every profile whose username equals handle exactly.
func (s *Store) FindAccountsByHandle(ctx context.Context, handle string) ([]domain.Account, error) {
	return s.queryAccounts(ctx, "SELECT "+accountColumns+" FROM profiles WHERE username = $1", handle)
}

func (s *Store) queryAccounts(ctx context.Context, sql string, args ...any) ([]domain.Account, error) {
	rows, err := s.Db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Account, error) {
		return scanAccount(row)
	})
}

// GetAccount retrieves a single profile by ID.
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, err := scanAccount(s.Db.QueryRow(ctx, "SELECT "+accountColumns+" FROM profiles WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	return &a, nil
}

// ListAccounts returns up to limit profiles other than exclude, ordered by
// username. Pass uuid.Nil to exclude nobody.
func (s *Store) ListAccounts(ctx context.Context, exclude uuid.UUID, limit int) ([]domain.Account, error) {
	return s.queryAccounts(ctx,
		"SELECT "+accountColumns+" FROM profiles WHERE id <> $1 ORDER BY username LIMIT $2",
		exclude, limit)
}

// SetSettlementAddress attaches addr to the account unless one is already
// provisioned, and returns whichever address the account ends up with.
func (s *Store) SetSettlementAddress(ctx context.Context, id uuid.UUID, addr string) (string, error) {
	var current string
	err := s.Db.QueryRow(ctx,
		"UPDATE profiles SET starknet_address = $2 WHERE id = $1 AND starknet_address IS NULL RETURNING starknet_address",
		id, addr,
	).Scan(&current)
	if err == nil {
		return current, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	acc, err := s.GetAccount(ctx, id)
	if err != nil {
		return "", err
	}
	return acc.SettlementAddress, nil
}

// GetWalletBalance returns the off-chain app balance; accounts without a
// wallet row have a zero balance.
func (s *Store) GetWalletBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var raw string
	err := s.Db.QueryRow(ctx, "SELECT balance::text FROM wallets WHERE user_id = $1", accountID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

// Transfer reads alias the row as t and join both parties' profiles.
const (
	transferColumns = `t.id, t.from_user_id, t.to_user_id, t.amount::text, t.transaction_type, t.status,
	t.tx_hash, t.processor, t.external_ref, t.note, t.idempotency_key, t.created_at, t.updated_at,
	fp.username, tp.username`
	transferJoins = ` JOIN profiles fp ON fp.id = t.from_user_id JOIN profiles tp ON tp.id = t.to_user_id`
)

func scanTransfer(row pgx.Row) (*domain.Transfer, error) {
	var (
		t      domain.Transfer
		amount string
	)
	err := row.Scan(&t.ID, &t.FromAccountID, &t.ToAccountID, &amount, &t.Kind, &t.Status,
		&t.TxHash, &t.Processor, &t.CheckoutRef, &t.Note, &t.IdempotencyKey, &t.CreatedAt, &t.UpdatedAt,
		&t.FromHandle, &t.ToHandle)
	if err != nil {
		return nil, err
	}
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: stored amount %q: %v", domain.ErrDataIntegrity, amount, err)
	}
	return &t, nil
}

// CreateTransfer inserts t and fills in its timestamps and party handles.
func (s *Store) CreateTransfer(ctx context.Context, t *domain.Transfer) error {
	err := s.Db.QueryRow(ctx, `
		WITH t AS (
			INSERT INTO transactions (id, from_user_id, to_user_id, amount, transaction_type, status,
				tx_hash, processor, external_ref, note, idempotency_key)
			VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11)
			RETURNING *
		)
		SELECT t.created_at, t.updated_at, fp.username, tp.username FROM t`+transferJoins,
		t.ID, t.FromAccountID, t.ToAccountID, t.Amount.String(), t.Kind, t.Status,
		t.TxHash, t.Processor, t.CheckoutRef, t.Note, t.IdempotencyKey,
	).Scan(&t.CreatedAt, &t.UpdatedAt, &t.FromHandle, &t.ToHandle)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		}
		return err
	}
	return nil
}

// GetTransfer retrieves transfer details.
func (s *Store) GetTransfer(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	t, err := scanTransfer(s.Db.QueryRow(ctx, "SELECT "+transferColumns+" FROM transactions t"+transferJoins+" WHERE t.id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: transfer %s", domain.ErrNotFound, id)
	}
	return t, err
}

// FindTransferByIdempotencyKey returns the sender's transfer created with key.
func (s *Store) FindTransferByIdempotencyKey(ctx context.Context, senderID uuid.UUID, key string) (*domain.Transfer, error) {
	t, err := scanTransfer(s.Db.QueryRow(ctx,
		"SELECT "+transferColumns+" FROM transactions t"+transferJoins+" WHERE t.from_user_id = $1 AND t.idempotency_key = $2",
		senderID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: idempotency key %q", domain.ErrNotFound, key)
	}
	return t, err
}

// CompleteByCheckoutRef marks the transfer with the given checkout reference
// completed. Applying it again overwrites with the same values.
func (s *Store) CompleteByCheckoutRef(ctx context.Context, ref, txHash string) (*domain.Transfer, error) {
	t, err := scanTransfer(s.Db.QueryRow(ctx, `
		WITH t AS (
			UPDATE transactions
			SET status = 'completed', tx_hash = NULLIF($2, ''), updated_at = now()
			WHERE external_ref = $1
			RETURNING *
		)
		SELECT `+transferColumns+` FROM t`+transferJoins,
		ref, txHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: checkout reference %q", domain.ErrNotFound, ref)
	}
	return t, err
}

// ListTransfers returns the account's latest transfers in either direction.
func (s *Store) ListTransfers(ctx context.Context, accountID uuid.UUID, limit int, onChainOnly bool) ([]domain.Transfer, error) {
	query := "SELECT " + transferColumns + " FROM transactions t" + transferJoins +
		" WHERE (t.from_user_id = $1 OR t.to_user_id = $1)"
	if onChainOnly {
		query += " AND t.tx_hash IS NOT NULL"
	}
	query += " ORDER BY t.created_at DESC LIMIT $2"

	rows, err := s.Db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Transfer, error) {
		t, err := scanTransfer(row)
		if err != nil {
			return domain.Transfer{}, err
		}
		return *t, nil
	})
}
