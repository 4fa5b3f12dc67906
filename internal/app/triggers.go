package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/mrz1836/tether/internal/broker"
	"github.com/mrz1836/tether/internal/provider"
	"github.com/mrz1836/tether/internal/signer"
	"github.com/mrz1836/tether/internal/wallet"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// Trigger names one user-facing action.
type Trigger string

// The user-facing triggers.
const (
	TriggerConnect       Trigger = "connect"
	TriggerDisconnect    Trigger = "disconnect"
	TriggerChainID       Trigger = "chainId"
	TriggerAccounts      Trigger = "accounts"
	TriggerBalance       Trigger = "balance"
	TriggerNetwork       Trigger = "network"
	TriggerSignMessage   Trigger = "signMessage"
	TriggerSignTypedData Trigger = "signTypedData"
	TriggerSendNative    Trigger = "sendNative"
	TriggerSendToken     Trigger = "sendToken"
)

// Triggers lists every trigger in display order.
func Triggers() []Trigger {
	return []Trigger{
		TriggerConnect, TriggerDisconnect,
		TriggerChainID, TriggerAccounts, TriggerBalance, TriggerNetwork,
		TriggerSignMessage, TriggerSignTypedData,
		TriggerSendNative, TriggerSendToken,
	}
}

// Enabled reports whether t can be invoked now. Connect and disconnect
// are always available; everything else needs an active session.
func (a *App) Enabled(t Trigger) bool {
	if t == TriggerConnect || t == TriggerDisconnect {
		return true
	}
	return a.Session() != nil
}

// Args are the inputs of Invoke. Each trigger reads only its own fields.
type Args struct {
	Kind     wallet.Kind
	Address  common.Address
	Message  string
	Typed    *TypedDataInput
	Token    common.Address
	To       common.Address
	Amount   *big.Int
	GasLimit uint64
}

// TypedDataInput is an EIP-712 request before the chain id is resolved.
type TypedDataInput struct {
	Domain      apitypes.TypedDataDomain
	Types       apitypes.Types
	PrimaryType string
	Message     apitypes.TypedDataMessage
}

// SignResult is a signature and its immediate verification.
type SignResult struct {
	*signer.SignedMessage
	Valid bool `json:"isValid"`
}

// Invoke runs t with args. Disabled triggers fail with ErrNoActiveSession
// before any wallet traffic.
func (a *App) Invoke(ctx context.Context, t Trigger, args Args) (any, error) {
	if !a.Enabled(t) {
		return nil, a.disabled(t)
	}

	switch t {
	case TriggerConnect:
		return result(a.Connect(ctx, args.Kind))
	case TriggerDisconnect:
		return nil, a.Disconnect(ctx)
	case TriggerChainID:
		return result(a.ChainID(ctx))
	case TriggerAccounts:
		return result(a.Accounts(ctx))
	case TriggerBalance:
		return result(a.Balance(ctx, args.Address))
	case TriggerNetwork:
		return result(a.Network(ctx))
	case TriggerSignMessage:
		return result(a.SignMessage(ctx, args.Message))
	case TriggerSignTypedData:
		if args.Typed == nil {
			return nil, tethererr.WithDetails(tethererr.ErrInvalidInput, map[string]string{"typed_data": "required"})
		}
		return result(a.SignTypedData(ctx, *args.Typed))
	case TriggerSendNative:
		return result(a.SendNative(ctx, args.To, args.Amount, args.GasLimit))
	case TriggerSendToken:
		return result(a.SendToken(ctx, args.Token, args.To, args.Amount, args.GasLimit))
	}

	return nil, tethererr.WithDetails(tethererr.ErrInvalidInput, map[string]string{"trigger": string(t)})
}

// result drops typed nil values so callers can compare against nil.
func result[T any](v T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (a *App) disabled(t Trigger) error {
	return tethererr.WithDetails(
		tethererr.WithSuggestion(tethererr.ErrNoActiveSession, "Run 'tether connect' first"),
		map[string]string{"trigger": string(t)},
	)
}

// Connect establishes a session with kind and makes it active.
func (a *App) Connect(ctx context.Context, kind wallet.Kind) (*broker.Session, error) {
	return a.broker.Connect(ctx, kind)
}

// Disconnect ends the active session, if any, and clears the cache. With
// no session it still clears the cache, so a record whose silent restore
// failed is not retried on every start.
func (a *App) Disconnect(ctx context.Context) error {
	return a.broker.Disconnect(ctx, a.Session())
}

// ChainID reads the wallet's active chain id.
func (a *App) ChainID(ctx context.Context) (*big.Int, error) {
	p, err := a.providerFor(TriggerChainID)
	if err != nil {
		return nil, err
	}
	return p.ChainID(ctx)
}

// Accounts lists the wallet's exposed accounts.
func (a *App) Accounts(ctx context.Context) ([]common.Address, error) {
	p, err := a.providerFor(TriggerAccounts)
	if err != nil {
		return nil, err
	}
	return p.Accounts(ctx)
}

// Balance reads the native balance of addr, or of the session account
// when addr is the zero address.
func (a *App) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	p, err := a.providerFor(TriggerBalance)
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		if addr, err = p.Account(ctx); err != nil {
			return nil, err
		}
	}
	return p.Balance(ctx, addr)
}

// Network describes the wallet's active chain.
func (a *App) Network(ctx context.Context) (*provider.Network, error) {
	p, err := a.providerFor(TriggerNetwork)
	if err != nil {
		return nil, err
	}
	return p.Network(ctx)
}

// SignMessage signs text and verifies the result against the session
// account straight away.
func (a *App) SignMessage(ctx context.Context, text string) (*SignResult, error) {
	cur, err := a.currentFor(TriggerSignMessage)
	if err != nil {
		return nil, err
	}

	signed, err := cur.signer.SignMessage(ctx, text)
	if err != nil {
		return nil, err
	}
	return verified(ctx, cur.signer, signed)
}

// SignTypedData signs an EIP-712 payload and verifies it.
func (a *App) SignTypedData(ctx context.Context, in TypedDataInput) (*SignResult, error) {
	cur, err := a.currentFor(TriggerSignTypedData)
	if err != nil {
		return nil, err
	}

	signed, err := cur.signer.SignTypedData(ctx, in.Domain, in.Types, in.PrimaryType, in.Message)
	if err != nil {
		return nil, err
	}
	return verified(ctx, cur.signer, signed)
}

// verified checks signed against its claimed signer. A mismatch is
// reported through Valid; only failures to verify at all are errors.
func verified(ctx context.Context, f *signer.Facade, signed *signer.SignedMessage) (*SignResult, error) {
	err := f.VerifySigned(ctx, signed)
	switch {
	case err == nil:
		return &SignResult{SignedMessage: signed, Valid: true}, nil
	case tethererr.Is(err, tethererr.ErrVerificationMismatch):
		return &SignResult{SignedMessage: signed, Valid: false}, nil
	default:
		return nil, err
	}
}

// SendNative transfers amount wei and waits for the receipt.
func (a *App) SendNative(ctx context.Context, to common.Address, amount *big.Int, gasLimit uint64) (*types.Receipt, error) {
	cur, err := a.currentFor(TriggerSendNative)
	if err != nil {
		return nil, err
	}
	return cur.executor.SendNative(ctx, to, amount, gasLimit)
}

// SendToken transfers amount base units of token and waits for the receipt.
func (a *App) SendToken(ctx context.Context, token, to common.Address, amount *big.Int, gasLimit uint64) (*types.Receipt, error) {
	cur, err := a.currentFor(TriggerSendToken)
	if err != nil {
		return nil, err
	}
	return cur.executor.SendTokenTransfer(ctx, token, to, amount, gasLimit)
}

func (a *App) currentFor(t Trigger) (*active, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.active == nil {
		return nil, a.disabled(t)
	}
	return a.active, nil
}

func (a *App) providerFor(t Trigger) (*provider.Provider, error) {
	cur, err := a.currentFor(t)
	if err != nil {
		return nil, err
	}
	return cur.provider, nil
}
