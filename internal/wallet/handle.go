package wallet

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// Mode selects whether a connection may prompt the user.
type Mode int

const (
	// Interactive connections may show consent prompts in the wallet.
	Interactive Mode = iota
	// Silent connections only reuse an authorization the wallet already
	// holds and fail instead of prompting.
	Silent
)

// String returns the mode name.
func (m Mode) String() string {
	if m == Silent {
		return "silent"
	}
	return "interactive"
}

// ConnectRequest carries the inputs of one connection attempt.
type ConnectRequest struct {
	Mode Mode
	// Resume is the token from a previous session's ResumeToken. Only
	// kinds with wallet-side sessions use it.
	Resume string
}

// Connector establishes connections for one provider kind.
type Connector interface {
	Kind() Kind
	Connect(ctx context.Context, req ConnectRequest) (Handle, error)
}

// Signer is the signing capability of a connected wallet.
type Signer interface {
	// Address is the primary account granted at connect time.
	Address() common.Address
	// Account is the wallet's primary account now. Users can switch
	// accounts inside the wallet, so signing resolves it per request.
	Account(ctx context.Context) (common.Address, error)
	SignText(ctx context.Context, from common.Address, message []byte) ([]byte, error)
	SignTypedData(ctx context.Context, from common.Address, typed apitypes.TypedData) ([]byte, error)
	// SendTransaction sends from args.From, or from Account when it is zero.
	SendTransaction(ctx context.Context, args TxArgs) (common.Hash, error)
}

// SessionCloser is implemented by handles whose wallet keeps a session
// that must be ended explicitly.
type SessionCloser interface {
	DisconnectSession(ctx context.Context) error
}

// Handle is a connected wallet. It is a closed set of variants:
// *InjectedHandle, *RelayHandle and *SessionHandle.
type Handle interface {
	Kind() Kind
	Transport() *Transport
	// Accounts returns the accounts granted when the connection was made.
	Accounts() []common.Address
	Signer() Signer
	// ResumeToken returns what a later silent connect needs to restore the
	// session, or "" when the kind does not resume.
	ResumeToken() string
	// Close releases the local connection without ending any wallet-side session.
	Close()

	isHandle()
}

type baseHandle struct {
	transport *Transport
	accounts  []common.Address
}

func (b *baseHandle) Transport() *Transport { return b.transport }

func (b *baseHandle) Accounts() []common.Address {
	out := make([]common.Address, len(b.accounts))
	copy(out, b.accounts)
	return out
}

func (b *baseHandle) Signer() Signer {
	var addr common.Address
	if len(b.accounts) > 0 {
		addr = b.accounts[0]
	}
	return &rpcSigner{transport: b.transport, address: addr}
}

func (b *baseHandle) Close() { b.transport.Close() }

func (b *baseHandle) isHandle() {}

// InjectedHandle is a wallet exposed directly by the host.
type InjectedHandle struct {
	baseHandle
	ClientVersion string
}

// Kind implements Handle.
func (h *InjectedHandle) Kind() Kind { return KindInjected }

// ResumeToken implements Handle. Injected wallets remember authorization themselves.
func (h *InjectedHandle) ResumeToken() string { return "" }

// PeerMetadata describes the remote wallet on the far side of a relay.
type PeerMetadata struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// RelaySession is the relay pairing behind a RelayHandle.
type RelaySession struct {
	Topic     string
	Peer      PeerMetadata
	transport *Transport
}

// Close ends the pairing on the relay.
func (s *RelaySession) Close(ctx context.Context) error {
	var ok bool
	return classifyRequest(s.transport.Call(ctx, &ok, "wc_sessionDelete", s.Topic))
}

// RelayHandle is a wallet reached through a relay pairing. Session is a
// back-reference used only for teardown.
type RelayHandle struct {
	baseHandle
	Session *RelaySession
}

// Kind implements Handle.
func (h *RelayHandle) Kind() Kind { return KindRelay }

// ResumeToken implements Handle.
func (h *RelayHandle) ResumeToken() string { return h.Session.Topic }

// DisconnectSession implements SessionCloser.
func (h *RelayHandle) DisconnectSession(ctx context.Context) error {
	return h.Session.Close(ctx)
}

// SmartSession is the session-service login behind a SessionHandle.
type SmartSession struct {
	ID        string
	Network   string
	transport *Transport
}

// Close signs out of the session service.
func (s *SmartSession) Close(ctx context.Context) error {
	var ok bool
	return classifyRequest(s.transport.Call(ctx, &ok, "session_close", s.ID))
}

// SessionHandle is a smart-contract wallet managed by a session service.
// Its account is a contract, so its signatures verify through EIP-1271.
type SessionHandle struct {
	baseHandle
	Session *SmartSession
}

// Kind implements Handle.
func (h *SessionHandle) Kind() Kind { return KindSession }

// ResumeToken implements Handle.
func (h *SessionHandle) ResumeToken() string { return h.Session.ID }

// DisconnectSession implements SessionCloser.
func (h *SessionHandle) DisconnectSession(ctx context.Context) error {
	return h.Session.Close(ctx)
}

type rpcSigner struct {
	transport *Transport
	address   common.Address
}

func (s *rpcSigner) Address() common.Address { return s.address }

// Account reads eth_accounts. A wallet that lists no accounts has locked
// or revoked access, which surfaces as ErrNoActiveSession.
func (s *rpcSigner) Account(ctx context.Context) (common.Address, error) {
	accounts, err := s.transport.Accounts(ctx)
	if err != nil {
		return common.Address{}, err
	}
	if len(accounts) == 0 {
		return common.Address{}, tethererr.WithSuggestion(tethererr.ErrNoActiveSession,
			"Unlock the wallet or run 'tether connect' again")
	}
	return accounts[0], nil
}

func (s *rpcSigner) SignText(ctx context.Context, from common.Address, message []byte) ([]byte, error) {
	return s.transport.PersonalSign(ctx, message, from)
}

func (s *rpcSigner) SignTypedData(ctx context.Context, from common.Address, typed apitypes.TypedData) ([]byte, error) {
	return s.transport.SignTypedDataV4(ctx, from, typed)
}

func (s *rpcSigner) SendTransaction(ctx context.Context, args TxArgs) (common.Hash, error) {
	if args.From == (common.Address{}) {
		from, err := s.Account(ctx)
		if err != nil {
			return common.Hash{}, err
		}
		args.From = from
	}
	return s.transport.SendTransaction(ctx, args)
}
