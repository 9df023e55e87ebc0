// Package registry tracks ownership and provenance of generated content.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"contentpay/backend/internal/apperrors"
	"contentpay/backend/internal/logging"
	"contentpay/backend/internal/repository"
	"contentpay/backend/pkg/models"
)

// Registry owns content records and their append-only ownership histories.
type Registry struct {
	store  repository.ContentStore
	logger *logging.Logger
	now    func() time.Time
}

// New creates a Registry backed by store.
func New(store repository.ContentStore, logger *logging.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger.With("component", "registry"),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// RegisterContent records newly generated content under owner.
func (r *Registry) RegisterContent(ctx context.Context, contentID, owner, contentType, model, prompt, paymentTxID string) (*models.ContentRecord, error) {
	if contentID == "" || owner == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "contentId and owner are required")
	}
	now := r.now()
	record := &models.ContentRecord{
		ID:                 contentID,
		Owner:              owner,
		ContentType:        contentType,
		Model:              model,
		Prompt:             prompt,
		CreationTime:       now,
		PaymentTransaction: paymentTxID,
		Status:             models.ContentStatusActive,
	}
	event := models.OwnershipEvent{
		Owner:           owner,
		Timestamp:       now,
		TransactionType: models.OwnershipEventCreation,
		PaymentTx:       paymentTxID,
	}
	if err := r.store.CreateContent(ctx, record, event); err != nil {
		return nil, err
	}
	r.logger.Info("Content registered", "content_id", contentID, "owner", owner)
	return record, nil
}

// TransferOwnership moves contentID from currentOwner to newOwner.
func (r *Registry) TransferOwnership(ctx context.Context, contentID, currentOwner, newOwner, paymentTxID string) (*models.ContentRecord, error) {
	if newOwner == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "newOwner is required")
	}
	record, err := r.store.TransferContent(ctx, contentID, models.OwnershipEvent{
		Owner:           newOwner,
		PreviousOwner:   currentOwner,
		Timestamp:       r.now(),
		TransactionType: models.OwnershipEventTransfer,
		PaymentTx:       paymentTxID,
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("Ownership transferred", "content_id", contentID, "from", currentOwner, "to", newOwner)
	return record, nil
}

// VerifyOwnership reports whether claimedOwner currently owns contentID.
// Unknown content is not an error, it is simply not owned.
func (r *Registry) VerifyOwnership(ctx context.Context, contentID, claimedOwner string) bool {
	record, err := r.store.GetContent(ctx, contentID)
	if err != nil {
		return false
	}
	return record.Owner == claimedOwner
}

// GetContentDetails returns a record with its history and metadata.
func (r *Registry) GetContentDetails(ctx context.Context, contentID string) (*models.ContentDetails, error) {
	return r.store.Details(ctx, contentID)
}

// GetOwnedContent returns the active records currently owned by owner.
func (r *Registry) GetOwnedContent(ctx context.Context, owner string) ([]*models.ContentRecord, error) {
	return r.store.ListByOwner(ctx, owner)
}

// AddMetadata attaches or overwrites one metadata key.
func (r *Registry) AddMetadata(ctx context.Context, contentID, key, value string) error {
	if key == "" {
		return apperrors.New(apperrors.ErrValidation, "metadata key is required")
	}
	return r.store.SetMetadata(ctx, contentID, key, value)
}

// GenerateOwnershipProof returns a fingerprint of the record if owner
// currently owns contentID.
func (r *Registry) GenerateOwnershipProof(ctx context.Context, contentID, owner string) (*models.OwnershipProof, error) {
	record, err := r.store.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if record.Owner != owner {
		return nil, apperrors.New(apperrors.ErrOwnershipMismatch, "%s does not own content %s", owner, contentID)
	}
	return &models.OwnershipProof{
		ContentID:    record.ID,
		Owner:        record.Owner,
		CreationTime: record.CreationTime,
		Model:        record.Model,
		PaymentTx:    record.PaymentTransaction,
		ProofHash:    ProofHash(record),
		Timestamp:    r.now(),
	}, nil
}

// GetStats aggregates counts over all content.
func (r *Registry) GetStats(ctx context.Context) (*models.RegistryStats, error) {
	stats, err := r.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	return stats, nil
}

// ProofHash fingerprints the id, owner, creation time and model of a record.
// Each field is length-prefixed so that no two distinct field tuples share
// an encoding.
func ProofHash(record *models.ContentRecord) string {
	h := sha256.New()
	for _, field := range []string{
		record.ID,
		record.Owner,
		record.CreationTime.UTC().Format(time.RFC3339Nano),
		record.Model,
	} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(field)))
		h.Write(n[:])
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}
