package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"contentpay/backend/internal/apperrors"
	"contentpay/backend/pkg/models"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS balances (
		user_id TEXT PRIMARY KEY,
		amount  BIGINT NOT NULL CHECK (amount >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		seq          BIGSERIAL PRIMARY KEY,
		id           TEXT NOT NULL UNIQUE,
		user_id      TEXT NOT NULL,
		service_type TEXT NOT NULL,
		amount       BIGINT NOT NULL,
		status       TEXT NOT NULL,
		metadata     JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_user_seq_idx ON transactions (user_id, seq DESC)`,
	`CREATE TABLE IF NOT EXISTS content (
		seq          BIGSERIAL PRIMARY KEY,
		id           TEXT NOT NULL UNIQUE,
		owner        TEXT NOT NULL,
		content_type TEXT NOT NULL,
		model        TEXT NOT NULL,
		prompt       TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		payment_tx   TEXT NOT NULL,
		status       TEXT NOT NULL,
		metadata     JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE INDEX IF NOT EXISTS content_owner_idx ON content (owner, seq)`,
	`CREATE TABLE IF NOT EXISTS ownership_events (
		seq            BIGSERIAL PRIMARY KEY,
		content_id     TEXT NOT NULL REFERENCES content (id),
		owner          TEXT NOT NULL,
		previous_owner TEXT NOT NULL DEFAULT '',
		event_type     TEXT NOT NULL,
		payment_tx     TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ownership_events_content_idx ON ownership_events (content_id, seq)`,
}

// Migrate creates the tables used by the Postgres stores if they do not exist.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// PostgresLedgerStore is a PostgreSQL implementation of the LedgerStore interface.
type PostgresLedgerStore struct {
	db *pgxpool.Pool
}

// NewPostgresLedgerStore creates a new PostgresLedgerStore.
func NewPostgresLedgerStore(db *pgxpool.Pool) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: db}
}

// SetBalance overwrites a user's balance.
func (s *PostgresLedgerStore) SetBalance(ctx context.Context, userID string, amount models.Money) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO balances (user_id, amount) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET amount = EXCLUDED.amount`,
		userID, int64(amount))
	return err
}

// Balance returns the user's balance.
func (s *PostgresLedgerStore) Balance(ctx context.Context, userID string) (models.Money, error) {
	var amount int64
	err := s.db.QueryRow(ctx, "SELECT amount FROM balances WHERE user_id = $1", userID).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return models.Money(amount), nil
}

// numericOutOfRange is the SQLSTATE of BIGINT overflow.
const numericOutOfRange = "22003"

// Credit adds amount to the user's balance. BIGINT overflow is reported as
// apperrors.ErrValidation.
func (s *PostgresLedgerStore) Credit(ctx context.Context, userID string, amount models.Money) (models.Money, error) {
	var balance int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO balances (user_id, amount) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET amount = balances.amount + EXCLUDED.amount
		 RETURNING amount`,
		userID, int64(amount)).Scan(&balance)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == numericOutOfRange {
		return 0, apperrors.New(apperrors.ErrValidation,
			"Crediting $%s would exceed the maximum balance", amount)
	}
	if err != nil {
		return 0, err
	}
	return models.Money(balance), nil
}

// Debit locks the balance row, checks it covers the amount, decrements it and
// records the transaction in one database transaction.
func (s *PostgresLedgerStore) Debit(ctx context.Context, t *models.Transaction) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var balance int64
	err = tx.QueryRow(ctx, "SELECT amount FROM balances WHERE user_id = $1 FOR UPDATE", t.UserID).Scan(&balance)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if models.Money(balance) < t.Amount {
		return apperrors.New(apperrors.ErrInsufficientBalance,
			"Insufficient balance. Required: $%s, Available: $%s", t.Amount, models.Money(balance))
	}

	if _, err = tx.Exec(ctx, "UPDATE balances SET amount = amount - $2 WHERE user_id = $1", t.UserID, int64(t.Amount)); err != nil {
		return err
	}
	metadata := t.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	if _, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, service_type, amount, status, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, t.ServiceType, int64(t.Amount), string(t.Status), metadata, t.Timestamp); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Transactions returns a user's transactions, most recent first.
func (s *PostgresLedgerStore) Transactions(ctx context.Context, userID string) ([]*models.Transaction, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, service_type, amount, status, metadata, created_at
		 FROM transactions WHERE user_id = $1 ORDER BY seq DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []*models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		var amount int64
		var status string
		if err := rows.Scan(&t.ID, &t.UserID, &t.ServiceType, &amount, &status, &t.Metadata, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Amount = models.Money(amount)
		t.Status = models.TransactionStatus(status)
		transactions = append(transactions, &t)
	}
	return transactions, rows.Err()
}

// PostgresContentStore is a PostgreSQL implementation of the ContentStore interface.
type PostgresContentStore struct {
	db *pgxpool.Pool
}

// NewPostgresContentStore creates a new PostgresContentStore.
func NewPostgresContentStore(db *pgxpool.Pool) *PostgresContentStore {
	return &PostgresContentStore{db: db}
}

const contentColumns = "id, owner, content_type, model, prompt, created_at, payment_tx, status"

func scanContent(row pgx.Row) (*models.ContentRecord, error) {
	var r models.ContentRecord
	var status string
	if err := row.Scan(&r.ID, &r.Owner, &r.ContentType, &r.Model, &r.Prompt, &r.CreationTime, &r.PaymentTransaction, &status); err != nil {
		return nil, err
	}
	r.Status = models.ContentStatus(status)
	return &r, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, contentID string, e models.OwnershipEvent) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO ownership_events (content_id, owner, previous_owner, event_type, payment_tx, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		contentID, e.Owner, e.PreviousOwner, string(e.TransactionType), e.PaymentTx, e.Timestamp)
	return err
}

// CreateContent inserts a record and its creation event.
func (s *PostgresContentStore) CreateContent(ctx context.Context, r *models.ContentRecord, event models.OwnershipEvent) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx,
		`INSERT INTO content (`+contentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		r.ID, r.Owner, r.ContentType, r.Model, r.Prompt, r.CreationTime, r.PaymentTransaction, string(r.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.ErrDuplicateContentID, "Content %s already registered", r.ID)
	}
	if err = insertEvent(ctx, tx, r.ID, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// TransferContent locks the record, checks the current owner and moves it.
func (s *PostgresContentStore) TransferContent(ctx context.Context, contentID string, event models.OwnershipEvent) (record *models.ContentRecord, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	record, err = scanContent(tx.QueryRow(ctx, "SELECT "+contentColumns+" FROM content WHERE id = $1 FOR UPDATE", contentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrContentNotFound, "Content %s not found", contentID)
	}
	if err != nil {
		return nil, err
	}
	if record.Owner != event.PreviousOwner {
		return nil, apperrors.New(apperrors.ErrOwnershipMismatch, "Only current owner can transfer ownership")
	}

	if _, err = tx.Exec(ctx, "UPDATE content SET owner = $2 WHERE id = $1", contentID, event.Owner); err != nil {
		return nil, err
	}
	if err = insertEvent(ctx, tx, contentID, event); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	record.Owner = event.Owner
	return record, nil
}

// GetContent returns a record by id.
func (s *PostgresContentStore) GetContent(ctx context.Context, contentID string) (*models.ContentRecord, error) {
	record, err := scanContent(s.db.QueryRow(ctx, "SELECT "+contentColumns+" FROM content WHERE id = $1", contentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrContentNotFound, "Content %s not found", contentID)
	}
	return record, err
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func readHistory(ctx context.Context, q querier, contentID string) ([]models.OwnershipEvent, error) {
	rows, err := q.Query(ctx,
		`SELECT owner, previous_owner, event_type, payment_tx, created_at
		 FROM ownership_events WHERE content_id = $1 ORDER BY seq`, contentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.OwnershipEvent
	for rows.Next() {
		var e models.OwnershipEvent
		var kind string
		if err := rows.Scan(&e.Owner, &e.PreviousOwner, &kind, &e.PaymentTx, &e.Timestamp); err != nil {
			return nil, err
		}
		e.TransactionType = models.OwnershipEventType(kind)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, apperrors.New(apperrors.ErrContentNotFound, "Content %s not found", contentID)
	}
	return events, nil
}

// History returns the ownership events of a content item, oldest first.
func (s *PostgresContentStore) History(ctx context.Context, contentID string) ([]models.OwnershipEvent, error) {
	return readHistory(ctx, s.db, contentID)
}

// Details reads the record, its history and its metadata in one
// repeatable-read transaction.
func (s *PostgresContentStore) Details(ctx context.Context, contentID string) (*models.ContentDetails, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	metadata := map[string]string{}
	row := tx.QueryRow(ctx, "SELECT "+contentColumns+", metadata FROM content WHERE id = $1", contentID)
	var r models.ContentRecord
	var status string
	err = row.Scan(&r.ID, &r.Owner, &r.ContentType, &r.Model, &r.Prompt, &r.CreationTime, &r.PaymentTransaction, &status, &metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrContentNotFound, "Content %s not found", contentID)
	}
	if err != nil {
		return nil, err
	}
	r.Status = models.ContentStatus(status)

	history, err := readHistory(ctx, tx, contentID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &models.ContentDetails{Content: &r, OwnershipHistory: history, Metadata: metadata}, nil
}

// ListByOwner returns the active records of owner in registration order.
func (s *PostgresContentStore) ListByOwner(ctx context.Context, owner string) ([]*models.ContentRecord, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+contentColumns+" FROM content WHERE owner = $1 AND status = $2 ORDER BY seq",
		owner, string(models.ContentStatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*models.ContentRecord{}
	for rows.Next() {
		r, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SetMetadata merges one key into the metadata document.
func (s *PostgresContentStore) SetMetadata(ctx context.Context, contentID, key, value string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE content SET metadata = metadata || jsonb_build_object($2::text, $3::text) WHERE id = $1",
		contentID, key, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.ErrContentNotFound, "Content %s not found", contentID)
	}
	return nil
}

// Metadata returns the metadata document of a content item.
func (s *PostgresContentStore) Metadata(ctx context.Context, contentID string) (map[string]string, error) {
	metadata := map[string]string{}
	err := s.db.QueryRow(ctx, "SELECT metadata FROM content WHERE id = $1", contentID).Scan(&metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrContentNotFound, "Content %s not found", contentID)
	}
	return metadata, err
}

// Stats aggregates counts over all content.
func (s *PostgresContentStore) Stats(ctx context.Context) (*models.RegistryStats, error) {
	stats := &models.RegistryStats{
		ContentTypes: make(map[string]int),
		Models:       make(map[string]int),
	}

	rows, err := s.db.Query(ctx, "SELECT content_type, model, count(*) FROM content GROUP BY content_type, model")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var contentType, model string
		var n int
		if err := rows.Scan(&contentType, &model, &n); err != nil {
			return nil, err
		}
		stats.TotalContent += n
		stats.ContentTypes[contentType] += n
		stats.Models[model] += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRow(ctx, "SELECT count(*) FROM ownership_events WHERE event_type = $1",
		string(models.OwnershipEventTransfer)).Scan(&stats.TotalTransfers)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
