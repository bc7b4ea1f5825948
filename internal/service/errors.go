package service

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by AccountingService for a rejected
// request wraps exactly one of them; anything else is a storage failure.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrConfiguration     = errors.New("configuration error")
)

var (
	ErrInvalidEvaluationValue  = fmt.Errorf("%w: invalid evaluation value", ErrValidation)
	ErrInvalidOrdering         = fmt.Errorf("%w: unknown order_by value", ErrValidation)
	ErrMissingID               = fmt.Errorf("%w: id is required", ErrValidation)
	ErrInvalidAmount           = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidPagination       = fmt.Errorf("%w: start and limit must not be negative", ErrValidation)
	ErrUserNotFound            = fmt.Errorf("user %w", ErrNotFound)
	ErrReferrerNotFound        = fmt.Errorf("referrer %w", ErrNotFound)
	ErrContributionNotFound    = fmt.Errorf("contribution %w", ErrNotFound)
	ErrEvaluationNotFound      = fmt.Errorf("evaluation %w", ErrNotFound)
	ErrUnknownContributionType = fmt.Errorf("%w: unknown contribution type", ErrConfiguration)
)
