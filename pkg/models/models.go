// Package models defines the domain models for the content payment service
package models

import (
	"encoding/json"
	"time"
)

// TransactionStatus represents the settlement state of a ledger transaction
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
)

// ContentStatus represents the lifecycle state of a registered content item
type ContentStatus string

const (
	ContentStatusActive  ContentStatus = "active"
	ContentStatusRetired ContentStatus = "retired"
)

// OwnershipEventType represents the kind of entry in a provenance history
type OwnershipEventType string

const (
	OwnershipEventCreation OwnershipEventType = "creation"
	OwnershipEventTransfer OwnershipEventType = "transfer"
)

// GenerateRequest is the payload of a content generation job
type GenerateRequest struct {
	Prompt      string `json:"prompt"`
	ContentType string `json:"contentType"`
	UserID      string `json:"userId"`
	Model       string `json:"model,omitempty"`
}

// Transaction is an immutable record of one completed debit
type Transaction struct {
	ID          string            `json:"id" db:"id"`
	UserID      string            `json:"userId" db:"user_id"`
	ServiceType string            `json:"serviceType" db:"service_type"`
	Amount      Money             `json:"amount" db:"amount"`
	Status      TransactionStatus `json:"status" db:"status"`
	Timestamp   time.Time         `json:"timestamp" db:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty" db:"metadata"` // JSONB
}

// ContentRecord is the current-state record of one piece of generated content
type ContentRecord struct {
	ID                 string        `json:"id" db:"id"`
	Owner              string        `json:"owner" db:"owner"`
	ContentType        string        `json:"contentType" db:"content_type"`
	Model              string        `json:"aiModel" db:"model"`
	Prompt             string        `json:"prompt" db:"prompt"`
	CreationTime       time.Time     `json:"creationTime" db:"created_at"`
	PaymentTransaction string        `json:"paymentTransaction" db:"payment_tx"`
	Status             ContentStatus `json:"status" db:"status"`
}

// OwnershipEvent is one append-only entry in a content item's provenance history
type OwnershipEvent struct {
	Owner           string             `json:"owner" db:"owner"`
	PreviousOwner   string             `json:"previousOwner,omitempty" db:"previous_owner"`
	Timestamp       time.Time          `json:"timestamp" db:"created_at"`
	TransactionType OwnershipEventType `json:"transactionType" db:"event_type"`
	PaymentTx       string             `json:"paymentTx,omitempty" db:"payment_tx"`
}

// ContentDetails bundles a record with its history and free-form metadata
type ContentDetails struct {
	Content          *ContentRecord    `json:"content"`
	OwnershipHistory []OwnershipEvent  `json:"ownershipHistory"`
	Metadata         map[string]string `json:"metadata"`
}

// OwnershipProof is a deterministic fingerprint over a record's identity fields.
// It is not signed and only detects tampering by recomputation.
type OwnershipProof struct {
	ContentID    string    `json:"contentId"`
	Owner        string    `json:"owner"`
	CreationTime time.Time `json:"creationTime"`
	Model        string    `json:"aiModel"`
	PaymentTx    string    `json:"paymentTx"`
	ProofHash    string    `json:"proofHash"`
	Timestamp    time.Time `json:"timestamp"`
}

// RegistryStats contains aggregate counts over the ownership registry
type RegistryStats struct {
	TotalContent   int            `json:"totalContent"`
	ContentTypes   map[string]int `json:"contentTypes"`
	Models         map[string]int `json:"aiModels"`
	TotalTransfers int            `json:"totalTransfers"`
}

// Artifact is the descriptor returned by a generation backend
type Artifact struct {
	ContentID   string            `json:"contentId"`
	ContentType string            `json:"contentType"`
	Model       string            `json:"model"`
	Prompt      string            `json:"prompt"`
	GeneratedAt time.Time         `json:"generatedAt"`
	Content     json.RawMessage   `json:"content"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ModelInfo describes one generation model and what it can produce
type ModelInfo struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Capabilities []string `json:"capabilities"`
}

// Supports reports whether the model can generate the given content type.
func (m ModelInfo) Supports(contentType string) bool {
	for _, c := range m.Capabilities {
		if c == contentType {
			return true
		}
	}
	return false
}

// UserStats summarizes a user's activity on the dashboard
type UserStats struct {
	TotalContent int   `json:"totalContent"`
	TotalSpent   Money `json:"totalSpent"`
}

// Dashboard is the per-user overview
type Dashboard struct {
	UserID             string           `json:"userId"`
	Balance            Money            `json:"balance"`
	OwnedContent       []*ContentRecord `json:"ownedContent"`
	TransactionHistory []*Transaction   `json:"transactionHistory"`
	Stats              UserStats        `json:"stats"`
}

// HealthStatus represents service health
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProblemDetails represents RFC 7807 Problem Details.
// Error repeats Detail for clients that only read an "error" member.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error"`
}
