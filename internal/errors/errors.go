// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Trade rejection kinds. A rejected buy or sell leaves every ledger untouched.
var (
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrNoPosition            = errors.New("no position")
	ErrInsufficientAvailable = errors.New("insufficient available quantity")
	ErrPriceLimitBlocked     = errors.New("price limit blocked")
)

// Non-rejection sentinels.
var (
	ErrIncompletePriceData = errors.New("incomplete price data")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrDataNotFound        = errors.New("data not found")
	ErrInsufficientData    = errors.New("insufficient data")
	ErrPeriodOutOfOrder    = errors.New("period out of order")
)

var rejectionKinds = []error{
	ErrInvalidQuantity,
	ErrInsufficientFunds,
	ErrNoPosition,
	ErrInsufficientAvailable,
	ErrPriceLimitBlocked,
}

// RejectionError reports why the execution engine refused a buy or sell.
type RejectionError struct {
	Kind   error
	Symbol string
	Side   string
	Reason string
}

func (e *RejectionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s rejected: %v: %s", e.Side, e.Symbol, e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s %s rejected: %v", e.Side, e.Symbol, e.Kind)
}

func (e *RejectionError) Unwrap() error {
	return e.Kind
}

// NewRejectionError creates a new RejectionError.
func NewRejectionError(kind error, symbol, side, reason string) *RejectionError {
	return &RejectionError{
		Kind:   kind,
		Symbol: symbol,
		Side:   side,
		Reason: reason,
	}
}

// IsRejection reports whether err is an expected trade rejection rather
// than a defect.
func IsRejection(err error) bool {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return true
	}
	for _, kind := range rejectionKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// RejectionKind returns the short name of the rejection kind, or "" if err
// is not a rejection.
func RejectionKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		return "InvalidQuantity"
	case errors.Is(err, ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, ErrNoPosition):
		return "NoPosition"
	case errors.Is(err, ErrInsufficientAvailable):
		return "InsufficientAvailable"
	case errors.Is(err, ErrPriceLimitBlocked):
		return "PriceLimitBlocked"
	default:
		return ""
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a problem with an input price series.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
