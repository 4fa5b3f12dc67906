package wallet

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"

	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected    = 4001
	CodeUnauthorized    = 4100
	CodeUnsupported     = 4200
	CodeDisconnected    = 4900
	CodeChainDisconnect = 4901
)

const insufficientFundsText = "insufficient funds"

// Classify maps a wallet transport error onto the error taxonomy.
// rejected is the sentinel used when the user declines the prompt, and
// unreachable the one used when the wallet cannot be reached at all.
// Context errors pass through untouched so callers can tell cancellation
// from failure.
func Classify(err error, rejected, unreachable *tethererr.TetherError) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var te *tethererr.TetherError
	if errors.As(err, &te) {
		return err
	}

	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return tethererr.WithCause(unreachable, err)
	}

	code := rpcErr.ErrorCode()
	switch code {
	case CodeUserRejected, CodeUnauthorized:
		return tethererr.WithCause(rejected, err)
	case CodeDisconnected, CodeChainDisconnect:
		return tethererr.WithCause(unreachable, err)
	}

	if strings.Contains(strings.ToLower(err.Error()), insufficientFundsText) {
		return tethererr.WithCause(tethererr.ErrInsufficientFunds, err)
	}

	return tethererr.WithDetails(
		tethererr.Wrap(err, "wallet returned an error"),
		map[string]string{"rpc_code": strconv.Itoa(code)},
	)
}

// classifyRequest is Classify for ordinary requests on an open session.
func classifyRequest(err error) error {
	return Classify(err, tethererr.ErrUserRejected, tethererr.ErrNetworkUnavailable)
}

// classifyConnect is Classify for the connection handshake.
func classifyConnect(err error) error {
	return Classify(err, tethererr.ErrConnectionRejected, tethererr.ErrConnectionUnavailable)
}
