package services

import (
	"context"
	"errors"
	"fmt"

	"conveniencia/internal/repository"

	"github.com/shopspring/decimal"
)

var (
	ErrTabNotFound       = errors.New("tab not found")
	ErrTabNotOpen        = errors.New("tab is not open")
	ErrLineNotFound      = errors.New("order line not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTimeout           = errors.New("operation timed out")
	ErrNoTransactions    = errors.New("no transactions to close")
)

// InsufficientFundsError reports how much cash is still missing.
type InsufficientFundsError struct {
	Due      decimal.Decimal
	Tendered decimal.Decimal
}

func (e *InsufficientFundsError) Missing() decimal.Decimal {
	return e.Due.Sub(e.Tendered)
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: due %s, tendered %s, missing %s",
		e.Due.StringFixed(2), e.Tendered.StringFixed(2), e.Missing().StringFixed(2))
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// gatewayError maps repository and context errors onto service errors.
func gatewayError(err error, notFound error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound) && notFound != nil:
		return notFound
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s", ErrTimeout, op)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}
