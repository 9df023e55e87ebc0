package repository

import (
	"context"

	"contentpay/backend/pkg/models"
)

// LedgerStore holds balances and the append-only transaction log.
// Implementations make Debit an atomic check-then-mutate per user.
type LedgerStore interface {
	// SetBalance overwrites a user's balance.
	SetBalance(ctx context.Context, userID string, amount models.Money) error
	// Balance returns the user's balance, zero when the user is unknown.
	Balance(ctx context.Context, userID string) (models.Money, error)
	// Credit adds amount to the balance and returns the new balance. It fails
	// with apperrors.ErrValidation when the result would overflow.
	Credit(ctx context.Context, userID string, amount models.Money) (models.Money, error)
	// Debit subtracts tx.Amount from tx.UserID's balance and appends tx to the
	// log. It fails with apperrors.ErrInsufficientBalance and changes nothing
	// when the balance does not cover the amount.
	Debit(ctx context.Context, tx *models.Transaction) error
	// Transactions returns a user's transactions, most recent first.
	Transactions(ctx context.Context, userID string) ([]*models.Transaction, error)
}

// ContentStore holds content records, their ownership histories and metadata.
// A record's owner and the newest history entry are always written together.
type ContentStore interface {
	// CreateContent inserts a record seeded with its creation event. It fails
	// with apperrors.ErrDuplicateContentID if the id is taken.
	CreateContent(ctx context.Context, record *models.ContentRecord, event models.OwnershipEvent) error
	// TransferContent moves ownership to event.Owner if the record is currently
	// owned by event.PreviousOwner and appends the event.
	TransferContent(ctx context.Context, contentID string, event models.OwnershipEvent) (*models.ContentRecord, error)
	// GetContent returns a record or apperrors.ErrContentNotFound.
	GetContent(ctx context.Context, contentID string) (*models.ContentRecord, error)
	// History returns the ownership events of a content item, oldest first.
	History(ctx context.Context, contentID string) ([]models.OwnershipEvent, error)
	// Details returns a record with its history and metadata read as one
	// consistent snapshot.
	Details(ctx context.Context, contentID string) (*models.ContentDetails, error)
	// ListByOwner returns active records of an owner in registration order.
	ListByOwner(ctx context.Context, owner string) ([]*models.ContentRecord, error)
	// SetMetadata attaches or overwrites one metadata key.
	SetMetadata(ctx context.Context, contentID, key, value string) error
	// Metadata returns the metadata map of a content item (never nil).
	Metadata(ctx context.Context, contentID string) (map[string]string, error)
	// Stats aggregates counts over all content.
	Stats(ctx context.Context) (*models.RegistryStats, error)
}
