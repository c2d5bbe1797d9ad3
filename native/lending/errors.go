package lending

import "errors"

// Error kinds. Every error returned by an operation matches exactly one of
// these through errors.Is.
var (
	ErrNotFound       = errors.New("lending: not found")
	ErrUnauthorized   = errors.New("lending: unauthorized")
	ErrInvalidState   = errors.New("lending: invalid state")
	ErrAmountMismatch = errors.New("lending: amount mismatch")
	ErrTermViolation  = errors.New("lending: term violation")
	ErrInvalidRequest = errors.New("lending: invalid request")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return "lending: " + e.msg }

func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func wrapRequest(msg string) error { return newError(ErrInvalidRequest, msg) }

var (
	ErrOfferNotFound      = newError(ErrNotFound, "offer not found")
	ErrCollectionNotFound = newError(ErrNotFound, "collection not found")

	ErrNotAdmin          = newError(ErrUnauthorized, "caller is not the admin")
	ErrInvalidOfferOwner = newError(ErrUnauthorized, "caller is neither the offer owner nor the admin")
	ErrInvalidBorrow     = newError(ErrUnauthorized, "caller is not the borrower")

	ErrOfferAlreadyAccepted = newError(ErrInvalidState, "offer already accepted")
	ErrOfferNotAccepted     = newError(ErrInvalidState, "offer not accepted")
	ErrOfferIndexExhausted  = newError(ErrInvalidState, "offer index exhausted")
	ErrNotInitialised       = newError(ErrInvalidState, "module not initialised")
	ErrAlreadyInitialised   = newError(ErrInvalidState, "module already initialised")

	ErrDepositFail     = newError(ErrAmountMismatch, "deposit missing or in the wrong denomination")
	ErrNotExactAmount  = newError(ErrAmountMismatch, "attached amount differs from the required amount")
	ErrUnexpectedFunds = newError(ErrAmountMismatch, "operation does not accept funds")

	ErrTooMuchLendAmount = newError(ErrTermViolation, "lend amount exceeds the collection floor price")

	ErrInvalidTokenID       = newError(ErrInvalidRequest, "token id required")
	ErrInvalidInterestSplit = newError(ErrInvalidRequest, "interest split must be between 0 and 100")
	ErrInvalidAmount        = newError(ErrInvalidRequest, "amount required")
	ErrInvalidAddress       = newError(ErrInvalidRequest, "address required")
	ErrInvalidCollection    = newError(ErrInvalidRequest, "collection contract required")
	ErrInvalidParams        = newError(ErrInvalidRequest, "params required")
	ErrUnknownMsg           = newError(ErrInvalidRequest, "unknown message")
)

// Host faults. These indicate a broken environment rather than a rejected
// request and carry no kind.
var (
	errNilState         = errors.New("lending engine: state not configured")
	ErrClockBeforeStart = errors.New("lending: current time precedes offer start")
	ErrRewardOverflow   = errors.New("lending: reward overflows 256 bits")

	// ErrEffectsUnconfirmed accompanies a committed result whose transfers
	// could not be released to the executor.
	ErrEffectsUnconfirmed = errors.New("lending: effects committed but not confirmed")
)
