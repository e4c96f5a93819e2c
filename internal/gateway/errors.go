package gateway

import (
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/quantumauth-io/quantum-dex-client/internal/apperr"
)

// EIP-1193 / EIP-3085 provider error codes.
const (
	CodeUserRejected = 4001
	CodeUnauthorized = 4100
	CodeDisconnected = 4900
	CodeUnknownChain = 4902
)

// Classify maps a provider error onto the client's error classes. Errors that
// carry no provider code are returned with the fallback class.
func Classify(err error, fallback error) error {
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case CodeUserRejected, CodeUnauthorized:
			return apperr.Mark(err, apperr.ErrUserRejected)
		case CodeUnknownChain:
			return apperr.Mark(err, ErrUnknownChain)
		case CodeDisconnected:
			return apperr.Mark(err, apperr.ErrProviderUnavailable)
		}
	}
	if fallback == nil {
		return err
	}
	return apperr.Mark(err, fallback)
}
