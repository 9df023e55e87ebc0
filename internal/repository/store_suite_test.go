package repository

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentpay/backend/internal/apperrors"
	"contentpay/backend/pkg/models"
)

func newTx(userID string, amount models.Money) *models.Transaction {
	return &models.Transaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		ServiceType: "text-generation",
		Amount:      amount,
		Status:      models.TransactionStatusCompleted,
		Timestamp:   time.Now().UTC().Truncate(time.Microsecond),
		Metadata:    map[string]string{"prompt": "hello"},
	}
}

// testLedgerStore exercises the LedgerStore contract against any implementation.
func testLedgerStore(t *testing.T, store LedgerStore) {
	ctx := context.Background()

	t.Run("Unknown user has zero balance", func(t *testing.T) {
		balance, err := store.Balance(ctx, "ghost-"+uuid.NewString())
		require.NoError(t, err)
		assert.Equal(t, models.Money(0), balance)
	})

	t.Run("SetBalance overwrites and Credit adds", func(t *testing.T) {
		user := "set-" + uuid.NewString()
		require.NoError(t, store.SetBalance(ctx, user, 500))
		require.NoError(t, store.SetBalance(ctx, user, 300))

		balance, err := store.Credit(ctx, user, 25)
		require.NoError(t, err)
		assert.Equal(t, models.Money(325), balance)
	})

	t.Run("Credit past the maximum balance changes nothing", func(t *testing.T) {
		user := "rich-" + uuid.NewString()
		require.NoError(t, store.SetBalance(ctx, user, models.Money(math.MaxInt64)))

		_, err := store.Credit(ctx, user, 1)
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		balance, err := store.Balance(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, models.Money(math.MaxInt64), balance)
	})

	t.Run("Debit decrements and records", func(t *testing.T) {
		user := "debit-" + uuid.NewString()
		require.NoError(t, store.SetBalance(ctx, user, 100))

		first := newTx(user, 5)
		second := newTx(user, 25)
		second.Timestamp = first.Timestamp.Add(time.Millisecond)
		require.NoError(t, store.Debit(ctx, first))
		require.NoError(t, store.Debit(ctx, second))

		balance, err := store.Balance(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, models.Money(70), balance)

		history, err := store.Transactions(ctx, user)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, second.ID, history[0].ID)
		assert.Equal(t, first.ID, history[1].ID)
		assert.Equal(t, "hello", history[1].Metadata["prompt"])
	})

	t.Run("Debit beyond balance changes nothing", func(t *testing.T) {
		user := "poor-" + uuid.NewString()
		require.NoError(t, store.SetBalance(ctx, user, 4))

		err := store.Debit(ctx, newTx(user, 5))
		assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)

		balance, err := store.Balance(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, models.Money(4), balance)

		history, err := store.Transactions(ctx, user)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("Concurrent debits never overdraw", func(t *testing.T) {
		user := "race-" + uuid.NewString()
		require.NoError(t, store.SetBalance(ctx, user, 100))

		const attempts = 20
		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := store.Debit(ctx, newTx(user, 25)); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				} else {
					assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 4, succeeded)
		balance, err := store.Balance(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, models.Money(0), balance)
	})
}

func newRecord(owner string) (*models.ContentRecord, models.OwnershipEvent) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	record := &models.ContentRecord{
		ID:                 "content_" + uuid.NewString(),
		Owner:              owner,
		ContentType:        "image-generation",
		Model:              "dall-e-3",
		Prompt:             "a lighthouse",
		CreationTime:       now,
		PaymentTransaction: "tx-1",
		Status:             models.ContentStatusActive,
	}
	event := models.OwnershipEvent{
		Owner:           owner,
		Timestamp:       now,
		TransactionType: models.OwnershipEventCreation,
		PaymentTx:       "tx-1",
	}
	return record, event
}

// testContentStore exercises the ContentStore contract against any implementation.
func testContentStore(t *testing.T, store ContentStore) {
	ctx := context.Background()

	t.Run("Create and Get", func(t *testing.T) {
		record, event := newRecord("alice")
		require.NoError(t, store.CreateContent(ctx, record, event))

		got, err := store.GetContent(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, record.ID, got.ID)
		assert.Equal(t, "alice", got.Owner)
		assert.True(t, record.CreationTime.Equal(got.CreationTime))

		history, err := store.History(ctx, record.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, models.OwnershipEventCreation, history[0].TransactionType)
	})

	t.Run("Duplicate id is rejected", func(t *testing.T) {
		record, event := newRecord("alice")
		require.NoError(t, store.CreateContent(ctx, record, event))

		dup, dupEvent := newRecord("mallory")
		dup.ID = record.ID
		err := store.CreateContent(ctx, dup, dupEvent)
		assert.ErrorIs(t, err, apperrors.ErrDuplicateContentID)

		got, err := store.GetContent(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Owner)
		history, err := store.History(ctx, record.ID)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("Transfer checks owner", func(t *testing.T) {
		record, event := newRecord("bob")
		require.NoError(t, store.CreateContent(ctx, record, event))

		transfer := models.OwnershipEvent{
			Owner:           "carol",
			PreviousOwner:   "mallory",
			Timestamp:       time.Now().UTC(),
			TransactionType: models.OwnershipEventTransfer,
		}
		_, err := store.TransferContent(ctx, record.ID, transfer)
		assert.ErrorIs(t, err, apperrors.ErrOwnershipMismatch)

		transfer.PreviousOwner = "bob"
		updated, err := store.TransferContent(ctx, record.ID, transfer)
		require.NoError(t, err)
		assert.Equal(t, "carol", updated.Owner)

		history, err := store.History(ctx, record.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "carol", history[1].Owner)
		assert.Equal(t, "bob", history[1].PreviousOwner)

		_, err = store.TransferContent(ctx, "missing-"+uuid.NewString(), transfer)
		assert.ErrorIs(t, err, apperrors.ErrContentNotFound)
	})

	t.Run("Details agree with the newest transfer", func(t *testing.T) {
		record, event := newRecord("p0")
		require.NoError(t, store.CreateContent(ctx, record, event))
		require.NoError(t, store.SetMetadata(ctx, record.ID, "quality", "high"))

		_, err := store.Details(ctx, "missing-"+uuid.NewString())
		assert.ErrorIs(t, err, apperrors.ErrContentNotFound)

		const transfers = 20
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < transfers; i++ {
				_, err := store.TransferContent(ctx, record.ID, models.OwnershipEvent{
					Owner:           fmt.Sprintf("p%d", i+1),
					PreviousOwner:   fmt.Sprintf("p%d", i),
					Timestamp:       time.Now().UTC().Truncate(time.Microsecond),
					TransactionType: models.OwnershipEventTransfer,
				})
				assert.NoError(t, err)
			}
		}()

		for reading := true; reading; {
			select {
			case <-done:
				reading = false
			default:
			}
			details, err := store.Details(ctx, record.ID)
			require.NoError(t, err)
			newest := details.OwnershipHistory[len(details.OwnershipHistory)-1]
			assert.Equal(t, details.Content.Owner, newest.Owner)
			assert.Equal(t, "high", details.Metadata["quality"])
		}

		details, err := store.Details(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("p%d", transfers), details.Content.Owner)
		assert.Len(t, details.OwnershipHistory, transfers+1)
	})

	t.Run("ListByOwner keeps registration order", func(t *testing.T) {
		owner := "dave-" + uuid.NewString()
		first, e1 := newRecord(owner)
		second, e2 := newRecord(owner)
		require.NoError(t, store.CreateContent(ctx, first, e1))
		require.NoError(t, store.CreateContent(ctx, second, e2))

		owned, err := store.ListByOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, owned, 2)
		assert.Equal(t, first.ID, owned[0].ID)
		assert.Equal(t, second.ID, owned[1].ID)
	})

	t.Run("Metadata", func(t *testing.T) {
		record, event := newRecord("erin")
		require.NoError(t, store.CreateContent(ctx, record, event))

		empty, err := store.Metadata(ctx, record.ID)
		require.NoError(t, err)
		assert.Empty(t, empty)

		require.NoError(t, store.SetMetadata(ctx, record.ID, "quality", "high"))
		require.NoError(t, store.SetMetadata(ctx, record.ID, "quality", "low"))
		require.NoError(t, store.SetMetadata(ctx, record.ID, "license", "cc-by"))

		metadata, err := store.Metadata(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"quality": "low", "license": "cc-by"}, metadata)

		err = store.SetMetadata(ctx, "missing-"+uuid.NewString(), "k", "v")
		assert.ErrorIs(t, err, apperrors.ErrContentNotFound)
	})

	t.Run("Stats", func(t *testing.T) {
		before, err := store.Stats(ctx)
		require.NoError(t, err)

		record, event := newRecord("frank")
		require.NoError(t, store.CreateContent(ctx, record, event))
		_, err = store.TransferContent(ctx, record.ID, models.OwnershipEvent{
			Owner:           "grace",
			PreviousOwner:   "frank",
			Timestamp:       time.Now().UTC(),
			TransactionType: models.OwnershipEventTransfer,
		})
		require.NoError(t, err)

		after, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, before.TotalContent+1, after.TotalContent)
		assert.Equal(t, before.TotalTransfers+1, after.TotalTransfers)
		assert.Equal(t, before.Models["dall-e-3"]+1, after.Models["dall-e-3"])
		assert.Equal(t, before.ContentTypes["image-generation"]+1, after.ContentTypes["image-generation"])
	})
}
