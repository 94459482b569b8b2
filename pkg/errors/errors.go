package errors

import (
	"errors"
	"fmt"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrMilestoneNotFound   = errors.New("milestone not found")
	ErrListingNotFound     = errors.New("listing not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrDisputeNotFound     = errors.New("dispute not found")
	ErrNilTransaction      = errors.New("transaction is nil")

	ErrPermissionDenied   = errors.New("permission denied")
	ErrIllegalTransition  = errors.New("illegal transition")
	ErrInvalidState       = errors.New("invalid state")
	ErrAlreadyApproved    = errors.New("milestone already approved")
	ErrUnknownAction      = errors.New("unknown action")
	ErrConcurrentUpdate   = errors.New("transaction was modified concurrently")
	ErrListingUnavailable = errors.New("listing is not available for escrow")

	ErrExternalService         = errors.New("external service failure")
	ErrRequestAlreadyProcessed = errors.New("request already processed")

	ErrInvalidInput            = errors.New("invalid input")
	ErrSameParty               = fmt.Errorf("%w: buyer and seller must be different users", ErrInvalidInput)
	ErrNonPositivePrice        = fmt.Errorf("%w: agreed price must be positive", ErrInvalidInput)
	ErrFeeOutOfRange           = fmt.Errorf("%w: platform fee bps must be between 0 and 10000", ErrInvalidInput)
	ErrMilestoneTotalExceeded  = fmt.Errorf("%w: milestone total exceeds agreed price", ErrInvalidInput)
	ErrFundingAmountMismatch   = fmt.Errorf("%w: funding amount must equal agreed price", ErrInvalidInput)
	ErrUnsupportedPaymentType  = fmt.Errorf("%w: unsupported payment type", ErrInvalidInput)
	ErrInvalidMilestone        = fmt.Errorf("%w: invalid milestone", ErrInvalidInput)
	ErrNegativeVerificationDay = fmt.Errorf("%w: verification days must not be negative", ErrInvalidInput)
)

// TransitionError reports a rejected lifecycle action together with the status the
// transaction was in, so callers can resynchronise.
type TransitionError struct {
	Action  string
	Current string
	Err     error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: action %q not allowed in status %s", e.Err, e.Action, e.Current)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// CurrentStatus extracts the status carried by a TransitionError, if any.
func CurrentStatus(err error) (string, bool) {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Current, true
	}
	return "", false
}
