package types

import (
	"errors"
	"fmt"
)

var (
	ErrValidation            = errors.New("validation error")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrBroadcastFailure      = errors.New("broadcast failure")
	ErrAttestationNotFound   = errors.New("attestation not found")
	ErrAttestationTimeout    = errors.New("attestation timeout")
	ErrMissingBurnMessage    = errors.New("missing burn message")
	ErrSessionKeyUnavailable = errors.New("session key unavailable")
	ErrTransferInProgress    = errors.New("transfer already in progress")
	ErrResetRequired         = errors.New("transfer is complete, reset before starting a new one")
	ErrQuoteSuperseded       = errors.New("quote superseded by a newer request")
	ErrServiceUnavailable    = errors.New("service unavailable")
)

// BroadcastError is a transaction that a chain rejected or reverted.
type BroadcastError struct {
	Chain     string
	Code      uint32
	Codespace string
	RawLog    string
	TxHash    string
}

func (e *BroadcastError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("%s tx %s failed with code %d: %s", e.Chain, e.TxHash, e.Code, e.RawLog)
	}
	return fmt.Sprintf("%s tx failed with code %d: %s", e.Chain, e.Code, e.RawLog)
}

func (e *BroadcastError) Unwrap() error {
	return ErrBroadcastFailure
}

// ServiceError is a non-2xx response from an external HTTP service. Body is kept verbatim.
type ServiceError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Validationf returns an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
