// Package apperr holds the client's error taxonomy. Every failure that reaches
// the UI boundary is marked with exactly one class so callers can branch with
// errors.Is and render a stable message instead of a raw error string.
package apperr

import (
	"github.com/cockroachdb/errors"
)

var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrUserRejected        = errors.New("user rejected request")
	ErrNetworkSwitchFailed = errors.New("network switch failed")
	ErrUnsupportedChain    = errors.New("unsupported chain")
	ErrQuoteUnavailable    = errors.New("quote unavailable")
	ErrApprovalFailed      = errors.New("approval failed")
	ErrSwapFailed          = errors.New("swap failed")
	ErrQueryFailed         = errors.New("query failed")
	ErrSendFailed          = errors.New("send failed")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrStaleSession        = errors.New("session changed during operation")
	ErrNotConnected        = errors.New("wallet not connected")
)

type Class string

const (
	ClassProviderUnavailable Class = "ProviderUnavailable"
	ClassUserRejected        Class = "UserRejected"
	ClassNetworkSwitchFailed Class = "NetworkSwitchFailed"
	ClassUnsupportedChain    Class = "UnsupportedChain"
	ClassQuoteUnavailable    Class = "QuoteUnavailable"
	ClassApprovalFailed      Class = "ApprovalFailed"
	ClassSwapFailed          Class = "SwapFailed"
	ClassQueryFailed         Class = "QueryFailed"
	ClassSendFailed          Class = "SendFailed"
	ClassInvalidArgument     Class = "InvalidArgument"
	ClassStaleSession        Class = "StaleSession"
	ClassNotConnected        Class = "NotConnected"
	ClassInternal            Class = "Internal"
)

type classInfo struct {
	sentinel error
	class    Class
	message  string
}

// Order matters: a user rejection inside a failed swap is reported as a
// rejection, and transaction-level classes win over the generic query class.
var classes = []classInfo{
	{ErrUserRejected, ClassUserRejected, "The request was rejected in the wallet."},
	{ErrProviderUnavailable, ClassProviderUnavailable, "No wallet provider is available. Install or start a wallet and try again."},
	{ErrNotConnected, ClassNotConnected, "Connect a wallet first."},
	{ErrStaleSession, ClassStaleSession, "The wallet account or network changed while the request was running."},
	{ErrNetworkSwitchFailed, ClassNetworkSwitchFailed, "The wallet could not switch to the requested network."},
	{ErrUnsupportedChain, ClassUnsupportedChain, "This network is not supported for that operation."},
	{ErrApprovalFailed, ClassApprovalFailed, "The token approval transaction failed."},
	{ErrSwapFailed, ClassSwapFailed, "The swap transaction failed."},
	{ErrSendFailed, ClassSendFailed, "The transfer failed."},
	{ErrQuoteUnavailable, ClassQuoteUnavailable, "No quote is available for this pair right now."},
	{ErrQueryFailed, ClassQueryFailed, "Reading data from the network failed."},
	{ErrInvalidArgument, ClassInvalidArgument, "The request is invalid."},
}

// classError marks cause with a class sentinel that errors.Is matches.
type classError struct {
	cause error
	class error
}

func (e *classError) Error() string { return e.cause.Error() }

func (e *classError) Unwrap() error { return e.cause }

func (e *classError) Is(target error) bool { return target == e.class }

// Mark attaches class to err while keeping err's own chain intact.
func Mark(err error, class error) error {
	if err == nil {
		return nil
	}
	return &classError{cause: err, class: class}
}

// Wrap marks err with class and prefixes msg.
func Wrap(err error, class error, msg string) error {
	if err == nil {
		return nil
	}
	return Mark(errors.Wrap(err, msg), class)
}

// Newf builds a fresh error already marked with class.
func Newf(class error, format string, args ...any) error {
	return Mark(errors.Newf(format, args...), class)
}

func ClassOf(err error) Class {
	if err == nil {
		return ""
	}
	for _, c := range classes {
		if errors.Is(err, c.sentinel) {
			return c.class
		}
	}
	return ClassInternal
}

// Message returns the user-facing sentence for err's class.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range classes {
		if errors.Is(err, c.sentinel) {
			return c.message
		}
	}
	return "Something went wrong."
}
