// Package apperrors defines the error kinds shared by the ledger, the
// ownership registry, the generator and the workflow orchestrator.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrValidation              = errors.New("validation error")
	ErrWorkflowNotFound        = errors.New("workflow not found")
	ErrInvalidWorkflow         = errors.New("invalid workflow")
	ErrJobNotFound             = errors.New("job not found")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrUnknownServiceType      = errors.New("unknown service type")
	ErrUnknownModel            = errors.New("unknown model")
	ErrModelCapabilityMismatch = errors.New("model capability mismatch")
	ErrContentNotFound         = errors.New("content not found")
	ErrDuplicateContentID      = errors.New("duplicate content id")
	ErrOwnershipMismatch       = errors.New("ownership mismatch")
	ErrForbidden               = errors.New("forbidden")
)

// Error attaches a human readable message to one of the error kinds above.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Kind }

// New builds an *Error of the given kind.
func New(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err describes a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContentNotFound) ||
		errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrWorkflowNotFound)
}

// IsClientError reports whether err is a validation or business-rule
// failure that the caller can correct.
func IsClientError(err error) bool {
	for _, kind := range []error{
		ErrValidation,
		ErrInvalidWorkflow,
		ErrInsufficientBalance,
		ErrUnknownServiceType,
		ErrUnknownModel,
		ErrModelCapabilityMismatch,
		ErrDuplicateContentID,
		ErrOwnershipMismatch,
		ErrContentNotFound,
		ErrWorkflowNotFound,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
