// Package ledger charges users for generation requests against prepaid balances.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"contentpay/backend/internal/apperrors"
	"contentpay/backend/internal/logging"
	"contentpay/backend/internal/repository"
	"contentpay/backend/pkg/models"
)

// DefaultRates is the price list per content type, in cents.
var DefaultRates = map[string]models.Money{
	"text-generation":  5,
	"image-generation": 25,
	"audio-generation": 15,
	"video-generation": 100,
}

// Ledger owns balances and the transaction log.
type Ledger struct {
	store  repository.LedgerStore
	rates  map[string]models.Money
	logger *logging.Logger
	now    func() time.Time
}

// New creates a Ledger charging DefaultRates.
func New(store repository.LedgerStore, logger *logging.Logger) *Ledger {
	rates := make(map[string]models.Money, len(DefaultRates))
	for k, v := range DefaultRates {
		rates[k] = v
	}
	return &Ledger{
		store:  store,
		rates:  rates,
		logger: logger.With("component", "ledger"),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// InitializeBalance sets a user's balance. It is meant for account bootstrap.
func (l *Ledger) InitializeBalance(ctx context.Context, userID string, amount models.Money) error {
	if userID == "" {
		return apperrors.New(apperrors.ErrValidation, "userId is required")
	}
	if amount < 0 {
		return apperrors.New(apperrors.ErrValidation, "initial balance cannot be negative")
	}
	if err := l.store.SetBalance(ctx, userID, amount); err != nil {
		return fmt.Errorf("failed to initialize balance: %w", err)
	}
	l.logger.Info("User balance initialized", "user_id", userID, "balance", amount.String())
	return nil
}

// ProcessPayment charges userID the rate of serviceType and returns the
// completed transaction.
func (l *Ledger) ProcessPayment(ctx context.Context, userID, serviceType string, metadata map[string]string) (*models.Transaction, error) {
	rate, ok := l.rates[serviceType]
	if !ok {
		return nil, apperrors.New(apperrors.ErrUnknownServiceType, "Unknown service type: %s", serviceType)
	}

	tx := &models.Transaction{
		ID:          "gmp_" + uuid.NewString(),
		UserID:      userID,
		ServiceType: serviceType,
		Amount:      rate,
		Status:      models.TransactionStatusCompleted,
		Timestamp:   l.now(),
		Metadata:    metadata,
	}
	if err := l.store.Debit(ctx, tx); err != nil {
		return nil, err
	}

	l.logger.Info("Payment processed", "user_id", userID, "service_type", serviceType, "amount", rate.String(), "tx_id", tx.ID)
	return tx, nil
}

// GetBalance returns the user's balance, zero when unknown.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (models.Money, error) {
	return l.store.Balance(ctx, userID)
}

// AddFunds credits a positive amount and returns the new balance.
func (l *Ledger) AddFunds(ctx context.Context, userID string, amount models.Money) (models.Money, error) {
	if userID == "" {
		return 0, apperrors.New(apperrors.ErrValidation, "userId is required")
	}
	if amount <= 0 {
		return 0, apperrors.New(apperrors.ErrValidation, "amount must be positive")
	}
	balance, err := l.store.Credit(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("failed to add funds: %w", err)
	}
	l.logger.Info("Funds added", "user_id", userID, "amount", amount.String(), "balance", balance.String())
	return balance, nil
}

// GetTransactionHistory returns the user's transactions, most recent first.
func (l *Ledger) GetTransactionHistory(ctx context.Context, userID string) ([]*models.Transaction, error) {
	return l.store.Transactions(ctx, userID)
}

// GetServiceRates returns a copy of the rate table.
func (l *Ledger) GetServiceRates() map[string]models.Money {
	out := make(map[string]models.Money, len(l.rates))
	for k, v := range l.rates {
		out[k] = v
	}
	return out
}

// SeedBalances initializes the balances in seed, given in major units such as
// "25.00". Users are processed in sorted order and the first invalid entry
// stops the run.
func (l *Ledger) SeedBalances(ctx context.Context, seed map[string]string) (int, error) {
	users := make([]string, 0, len(seed))
	for u := range seed {
		users = append(users, u)
	}
	sort.Strings(users)

	for i, u := range users {
		amount, err := models.ParseMoney(seed[u])
		if err != nil {
			return i, apperrors.New(apperrors.ErrValidation, "invalid seed balance for %s: %v", u, err)
		}
		if err := l.InitializeBalance(ctx, u, amount); err != nil {
			return i, err
		}
	}
	return len(users), nil
}
