// Package errors provides structured error handling for Tether.
// It defines sentinel errors, exit codes, and helpers for adding
// context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess    = 0 // Successful execution
	ExitGeneral    = 1 // General/unknown error
	ExitInput      = 2 // Invalid input
	ExitRejected   = 3 // Consent declined in the wallet
	ExitNotFound   = 4 // Resource or session not found
	ExitPermission = 5 // Insufficient funds or precondition failed
	ExitNetwork    = 6 // Wallet or chain unreachable
	ExitTimeout    = 7 // Confirmation wait exceeded its bound
)

// TetherError is the structured error type for Tether.
type TetherError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *TetherError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *TetherError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for TetherError. Two errors match when their codes match.
func (e *TetherError) Is(target error) bool {
	var t *TetherError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &TetherError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &TetherError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrNotFound = &TetherError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	// Connection errors.
	ErrConnectionRejected = &TetherError{
		Code:     "CONNECTION_REJECTED",
		Message:  "connection request was rejected in the wallet",
		ExitCode: ExitRejected,
	}

	ErrConnectionUnavailable = &TetherError{
		Code:     "CONNECTION_UNAVAILABLE",
		Message:  "wallet provider is unavailable",
		ExitCode: ExitNetwork,
	}

	ErrConnectionInProgress = &TetherError{
		Code:     "CONNECTION_IN_PROGRESS",
		Message:  "a connection attempt is already in progress",
		ExitCode: ExitGeneral,
	}

	ErrNoActiveSession = &TetherError{
		Code:     "NO_ACTIVE_SESSION",
		Message:  "no active wallet session",
		ExitCode: ExitPermission,
	}

	ErrUnknownProvider = &TetherError{
		Code:     "UNKNOWN_PROVIDER",
		Message:  "unknown provider kind",
		ExitCode: ExitInput,
	}

	// Chain and wallet operation errors.
	ErrNetworkUnavailable = &TetherError{
		Code:     "NETWORK_UNAVAILABLE",
		Message:  "network communication failed",
		ExitCode: ExitNetwork,
	}

	ErrUserRejected = &TetherError{
		Code:     "USER_REJECTED",
		Message:  "request was rejected in the wallet",
		ExitCode: ExitRejected,
	}

	ErrInsufficientFunds = &TetherError{
		Code:     "INSUFFICIENT_FUNDS",
		Message:  "insufficient funds for transaction",
		ExitCode: ExitPermission,
	}

	ErrConfirmationTimeout = &TetherError{
		Code:     "CONFIRMATION_TIMEOUT",
		Message:  "transaction was submitted but not confirmed in time",
		ExitCode: ExitTimeout,
	}

	ErrTxReverted = &TetherError{
		Code:     "TX_REVERTED",
		Message:  "transaction was mined but reverted",
		ExitCode: ExitGeneral,
	}

	ErrVerificationMismatch = &TetherError{
		Code:     "VERIFICATION_MISMATCH",
		Message:  "signature does not match the claimed signer",
		ExitCode: ExitGeneral,
	}

	ErrChainMismatch = &TetherError{
		Code:     "CHAIN_MISMATCH",
		Message:  "typed data chain id does not match the wallet's active chain",
		ExitCode: ExitInput,
	}

	ErrInvalidAddress = &TetherError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid address format",
		ExitCode: ExitInput,
	}

	ErrInvalidAmount = &TetherError{
		Code:     "INVALID_AMOUNT",
		Message:  "invalid amount format",
		ExitCode: ExitInput,
	}

	ErrTransactionNotFound = &TetherError{
		Code:     "TRANSACTION_NOT_FOUND",
		Message:  "transaction not found",
		ExitCode: ExitNotFound,
	}

	// Config and storage errors.
	ErrConfigNotFound = &TetherError{
		Code:     "CONFIG_NOT_FOUND",
		Message:  "configuration file not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &TetherError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}

	ErrCacheUnavailable = &TetherError{
		Code:     "CACHE_UNAVAILABLE",
		Message:  "session cache is unavailable",
		ExitCode: ExitGeneral,
	}

	ErrDecryptionFailed = &TetherError{
		Code:     "DECRYPTION_FAILED",
		Message:  "decryption failed - wrong identity or corrupted data",
		ExitCode: ExitGeneral,
	}
)

// New creates a new TetherError with the given code and message.
func New(code, message string) *TetherError {
	return &TetherError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var te *TetherError
	if errors.As(err, &te) {
		return &TetherError{
			Code:       te.Code,
			Message:    fmt.Sprintf("%s: %s", msg, te.Message),
			Details:    te.Details,
			Suggestion: te.Suggestion,
			Cause:      err,
			ExitCode:   te.ExitCode,
		}
	}

	return &TetherError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithCause attaches an underlying error to a sentinel while keeping its code.
func WithCause(sentinel *TetherError, cause error) error {
	return &TetherError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		Details:    sentinel.Details,
		Suggestion: sentinel.Suggestion,
		Cause:      cause,
		ExitCode:   sentinel.ExitCode,
	}
}

// WithDetails adds details to an error. Existing details are kept unless overwritten.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var te *TetherError
	if errors.As(err, &te) {
		merged := make(map[string]string, len(te.Details)+len(details))
		for k, v := range te.Details {
			merged[k] = v
		}
		for k, v := range details {
			merged[k] = v
		}
		return &TetherError{
			Code:       te.Code,
			Message:    te.Message,
			Details:    merged,
			Suggestion: te.Suggestion,
			Cause:      te.Cause,
			ExitCode:   te.ExitCode,
		}
	}

	return &TetherError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var te *TetherError
	if errors.As(err, &te) {
		return &TetherError{
			Code:       te.Code,
			Message:    te.Message,
			Details:    te.Details,
			Suggestion: suggestion,
			Cause:      te.Cause,
			ExitCode:   te.ExitCode,
		}
	}

	return &TetherError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var te *TetherError
	if errors.As(err, &te) {
		return te.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var te *TetherError
	if errors.As(err, &te) {
		return te.Code
	}
	return "GENERAL_ERROR"
}

// DetailsOf returns the details attached to the outermost TetherError, or nil.
func DetailsOf(err error) map[string]string {
	var te *TetherError
	if errors.As(err, &te) {
		return te.Details
	}
	return nil
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
