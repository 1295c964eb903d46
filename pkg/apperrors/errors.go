// Package apperrors defines the exchange-transport error taxonomy shared by
// every exchange adapter, so the engines can classify failures without
// depending on a specific adapter's wire format.
package apperrors

import "errors"

// Standardized exchange errors. Adapters translate wire-level error codes
// (§6 "Error codes the core must classify") into these sentinels so the
// engines can match with errors.Is regardless of which venue is in use.
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrOrderRejected         = errors.New("order rejected")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrNetwork               = errors.New("network error")
	ErrInvalidSymbol         = errors.New("invalid symbol")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrExchangeMaintenance   = errors.New("exchange maintenance")
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateOrder        = errors.New("duplicate order")
	ErrInvalidOrderParameter = errors.New("invalid order parameter")
	ErrSystemOverload        = errors.New("system overload")

	// ErrNoPosition corresponds to Bitget code 22002: the exchange has not
	// yet settled the long inventory from a recent buy fill. Retryable by
	// the scalping buy-filled handler and the grid sell-placement retry.
	ErrNoPosition = errors.New("no position to close")

	// ErrTradeSideMismatch corresponds to Bitget code 40774: the account's
	// hold mode does not match the tradeSide the adapter sent. Retryable:
	// the scalping buy-filled handler inverts tradeSide on its sixth
	// attempt; the grid sell-placement retry resends it unchanged.
	ErrTradeSideMismatch = errors.New("trade side mode mismatch")
)

// ExchangeError preserves the original wire-level code alongside the
// classified sentinel, so retry classifiers can match on the exact code
// (22002 / 40774) per §6 even after the error has been wrapped.
type ExchangeError struct {
	Code    string
	Message string
	Err     error
}

func (e *ExchangeError) Error() string {
	if e.Message != "" {
		return e.Message + " (" + e.Code + ")"
	}
	return e.Err.Error() + " (" + e.Code + ")"
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// Code extracts the original exchange code from err, if it carries one.
func Code(err error) (string, bool) {
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee.Code, true
	}
	return "", false
}
