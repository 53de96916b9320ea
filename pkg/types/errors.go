package types

import (
	"errors"
	"fmt"
	"strings"
)

// Error classes. Concrete errors wrap exactly one class so callers can branch on
// either the class or the specific cause with errors.Is.
var (
	ErrValidation           = errors.New("validation error")
	ErrLiquidity            = errors.New("liquidity error")
	ErrApproval             = errors.New("approval error")
	ErrSigningRejected      = errors.New("signing rejected by user")
	ErrSubmissionRejected   = errors.New("submission rejected")
	ErrSettlementNotReady   = errors.New("settlement not ready")
	ErrIncompleteMarketData = errors.New("incomplete market data")
	ErrTransport            = errors.New("transport error")
)

// Validation failures.
var (
	ErrInvalidQuantity      = fmt.Errorf("%w: quantity must be positive", ErrValidation)
	ErrInvalidPrice         = fmt.Errorf("%w: price must be between 0 and 1 exclusive", ErrValidation)
	ErrInvalidPrecision     = fmt.Errorf("%w: too many decimal places", ErrValidation)
	ErrBelowMinimumNotional = fmt.Errorf("%w: order value below exchange minimum", ErrValidation)
	ErrUnknownOutcome       = fmt.Errorf("%w: unknown outcome", ErrValidation)
)

// ErrInsufficientLiquidity is returned when the opposing side of the book cannot fill
// a market order.
var ErrInsufficientLiquidity = fmt.Errorf("%w: insufficient liquidity", ErrLiquidity)

// ErrApprovalRequired is returned when a flow needs an allowance that is not in place.
var ErrApprovalRequired = fmt.Errorf("%w: approval required", ErrApproval)

// ErrWrongNetwork is returned when the wallet is on a different chain and cannot switch.
var ErrWrongNetwork = errors.New("wallet is connected to the wrong network")

// ErrMarketNotResolved is returned when redemption is attempted before the market has
// resolved. It matches both ErrIncompleteMarketData and ErrSettlementNotReady.
var ErrMarketNotResolved error = &notResolvedError{}

type notResolvedError struct{}

func (e *notResolvedError) Error() string { return "market is not resolved" }

func (e *notResolvedError) Is(target error) bool {
	return target == ErrIncompleteMarketData || target == ErrSettlementNotReady
}

// SubmissionRejectedError is an application-level rejection from the order endpoint.
// Description is the backend's text, unmodified.
type SubmissionRejectedError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *SubmissionRejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("order rejected (status %d, %s): %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("order rejected (status %d): %s", e.StatusCode, e.Description)
}

func (e *SubmissionRejectedError) Unwrap() error { return ErrSubmissionRejected }

// ApprovalError describes a failed approval for one spender/token pair.
type ApprovalError struct {
	Spender string
	Token   string
	TxHash  string
	Err     error
}

func (e *ApprovalError) Error() string {
	msg := fmt.Sprintf("approval of %s for token %s failed", e.Spender, e.Token)
	if e.TxHash != "" {
		msg += " (tx " + e.TxHash + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ApprovalError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrApproval}
	}
	return []error{ErrApproval, e.Err}
}

// rejectionMarkers are substrings wallets use when the user declines a request.
var rejectionMarkers = []string{
	"user rejected",
	"user denied",
	"action_rejected",
	"rejected by user",
}

// IsUserRejection reports whether err represents the user declining a wallet prompt.
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSigningRejected) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rejectionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
