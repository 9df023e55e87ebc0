package repository

import (
	"context"
	"math"
	"sync"

	"contentpay/backend/internal/apperrors"
	"contentpay/backend/pkg/models"
)

// keyedMutex hands out one mutex per key so that operations on different
// users or content ids do not contend. An entry lives only while some
// goroutine holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// MemoryLedgerStore is an in-process implementation of LedgerStore.
type MemoryLedgerStore struct {
	users keyedMutex

	mu       sync.RWMutex
	balances map[string]models.Money
	txLog    []*models.Transaction
	byUser   map[string][]int
}

// NewMemoryLedgerStore creates an empty MemoryLedgerStore.
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		balances: make(map[string]models.Money),
		byUser:   make(map[string][]int),
	}
}

// SetBalance overwrites a user's balance.
func (s *MemoryLedgerStore) SetBalance(_ context.Context, userID string, amount models.Money) error {
	defer s.users.lock(userID)()

	s.mu.Lock()
	s.balances[userID] = amount
	s.mu.Unlock()
	return nil
}

// Balance returns the user's balance.
func (s *MemoryLedgerStore) Balance(_ context.Context, userID string) (models.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[userID], nil
}

// Credit adds amount to the user's balance. A credit that would overflow the
// balance fails with apperrors.ErrValidation and changes nothing.
func (s *MemoryLedgerStore) Credit(_ context.Context, userID string, amount models.Money) (models.Money, error) {
	defer s.users.lock(userID)()

	s.mu.Lock()
	defer s.mu.Unlock()
	balance := s.balances[userID]
	if amount > 0 && balance > math.MaxInt64-amount {
		return 0, apperrors.New(apperrors.ErrValidation,
			"Crediting $%s would exceed the maximum balance", amount)
	}
	s.balances[userID] = balance + amount
	return s.balances[userID], nil
}

// Debit atomically checks and decrements the balance and records tx.
func (s *MemoryLedgerStore) Debit(_ context.Context, tx *models.Transaction) error {
	defer s.users.lock(tx.UserID)()

	s.mu.RLock()
	balance := s.balances[tx.UserID]
	s.mu.RUnlock()

	if balance < tx.Amount {
		return apperrors.New(apperrors.ErrInsufficientBalance,
			"Insufficient balance. Required: $%s, Available: $%s", tx.Amount, balance)
	}

	stored := cloneTransaction(tx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[tx.UserID] = balance - tx.Amount
	s.txLog = append(s.txLog, stored)
	s.byUser[tx.UserID] = append(s.byUser[tx.UserID], len(s.txLog)-1)
	return nil
}

// Transactions returns a user's transactions, most recent first.
func (s *MemoryLedgerStore) Transactions(_ context.Context, userID string) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.byUser[userID]
	out := make([]*models.Transaction, 0, len(idx))
	for i := len(idx) - 1; i >= 0; i-- {
		out = append(out, cloneTransaction(s.txLog[idx[i]]))
	}
	return out, nil
}

func cloneTransaction(tx *models.Transaction) *models.Transaction {
	out := *tx
	if tx.Metadata != nil {
		out.Metadata = make(map[string]string, len(tx.Metadata))
		for k, v := range tx.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// MemoryContentStore is an in-process implementation of ContentStore.
type MemoryContentStore struct {
	items keyedMutex

	mu       sync.RWMutex
	order    []string
	records  map[string]*models.ContentRecord
	history  map[string][]models.OwnershipEvent
	metadata map[string]map[string]string
}

// NewMemoryContentStore creates an empty MemoryContentStore.
func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{
		records:  make(map[string]*models.ContentRecord),
		history:  make(map[string][]models.OwnershipEvent),
		metadata: make(map[string]map[string]string),
	}
}

// CreateContent inserts a new record and its creation event.
func (s *MemoryContentStore) CreateContent(_ context.Context, record *models.ContentRecord, event models.OwnershipEvent) error {
	defer s.items.lock(record.ID)()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return apperrors.New(apperrors.ErrDuplicateContentID, "Content %s already registered", record.ID)
	}
	stored := *record
	s.records[record.ID] = &stored
	s.history[record.ID] = []models.OwnershipEvent{event}
	s.order = append(s.order, record.ID)
	return nil
}

// TransferContent changes the owner of a record and appends the transfer event.
func (s *MemoryContentStore) TransferContent(_ context.Context, contentID string, event models.OwnershipEvent) (*models.ContentRecord, error) {
	defer s.items.lock(contentID)()

	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[contentID]
	if !ok {
		return nil, apperrors.New(apperrors.ErrContentNotFound, "Content %s not found", contentID)
	}
	if record.Owner != event.PreviousOwner {
		return nil, apperrors.New(apperrors.ErrOwnershipMismatch, "Only current owner can transfer ownership")
	}
	record.Owner = event.Owner
	s.history[contentID] = append(s.history[contentID], event)

	out := *record
	return &out, nil
}

// GetContent returns a copy of a record.
func (s *MemoryContentStore) GetContent(_ context.Context, contentID string) (*models.ContentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[contentID]
	if !ok {
		return nil, apperrors.New(apperrors.ErrContentNotFound, "Content %s not found", contentID)
	}
	out := *record
	return &out, nil
}

// History returns a copy of the ownership history.
func (s *MemoryContentStore) History(_ context.Context, contentID string) ([]models.OwnershipEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.history[contentID]
	if !ok {
		return nil, apperrors.New(apperrors.ErrContentNotFound, "Content %s not found", contentID)
	}
	out := make([]models.OwnershipEvent, len(h))
	copy(out, h)
	return out, nil
}

// Details returns a record, its history and its metadata under one read lock.
func (s *MemoryContentStore) Details(_ context.Context, contentID string) (*models.ContentDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[contentID]
	if !ok {
		return nil, apperrors.New(apperrors.ErrContentNotFound, "Content %s not found", contentID)
	}
	rec := *record
	history := make([]models.OwnershipEvent, len(s.history[contentID]))
	copy(history, s.history[contentID])
	metadata := make(map[string]string, len(s.metadata[contentID]))
	for k, v := range s.metadata[contentID] {
		metadata[k] = v
	}
	return &models.ContentDetails{Content: &rec, OwnershipHistory: history, Metadata: metadata}, nil
}

// ListByOwner returns the active records of owner in registration order.
func (s *MemoryContentStore) ListByOwner(_ context.Context, owner string) ([]*models.ContentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.ContentRecord{}
	for _, id := range s.order {
		r := s.records[id]
		if r.Owner == owner && r.Status == models.ContentStatusActive {
			rec := *r
			out = append(out, &rec)
		}
	}
	return out, nil
}

// SetMetadata attaches or overwrites one key.
func (s *MemoryContentStore) SetMetadata(_ context.Context, contentID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[contentID]; !ok {
		return apperrors.New(apperrors.ErrContentNotFound, "Content %s not found", contentID)
	}
	m, ok := s.metadata[contentID]
	if !ok {
		m = make(map[string]string)
		s.metadata[contentID] = m
	}
	m[key] = value
	return nil
}

// Metadata returns a copy of the metadata map.
func (s *MemoryContentStore) Metadata(_ context.Context, contentID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.records[contentID]; !ok {
		return nil, apperrors.New(apperrors.ErrContentNotFound, "Content %s not found", contentID)
	}
	out := make(map[string]string, len(s.metadata[contentID]))
	for k, v := range s.metadata[contentID] {
		out[k] = v
	}
	return out, nil
}

// Stats aggregates counts over all records.
func (s *MemoryContentStore) Stats(_ context.Context) (*models.RegistryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &models.RegistryStats{
		TotalContent: len(s.records),
		ContentTypes: make(map[string]int),
		Models:       make(map[string]int),
	}
	for _, r := range s.records {
		stats.ContentTypes[r.ContentType]++
		stats.Models[r.Model]++
	}
	for _, h := range s.history {
		stats.TotalTransfers += len(h) - 1
	}
	return stats, nil
}
