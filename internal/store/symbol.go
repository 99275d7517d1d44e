package store

import (
	"regexp"
	"strings"

	apperrors "astock-backtest/internal/errors"
)

// Exchange codes like 600519.SH and class shares like BRK-B are accepted.
// Commas are not, since run rows store symbols comma-joined.
var symbolPattern = regexp.MustCompile(`^[A-Z0-9&._-]{1,20}$`)

// ValidateSymbol checks a symbol as stored, without changing its case.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return apperrors.NewValidationError("symbol", symbol, "symbol cannot be empty")
	}
	if len(symbol) > 20 {
		return apperrors.NewValidationError("symbol", symbol, "symbol too long (max 20 characters)")
	}
	if !symbolPattern.MatchString(symbol) {
		return apperrors.NewValidationError("symbol", symbol, "invalid symbol format")
	}
	return nil
}

// NormalizeSymbol trims and upper-cases user input, then validates it.
func NormalizeSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if err := ValidateSymbol(symbol); err != nil {
		return "", err
	}
	return symbol, nil
}
