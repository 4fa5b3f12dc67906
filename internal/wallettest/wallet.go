// Package wallettest provides an in-memory EIP-1193 wallet served over
// HTTP for tests. It signs with a real secp256k1 key, keeps balances, and
// lets tests control the active chain, user consent and mining.
package wallettest

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

// Consent is how the fake user answers wallet prompts.
type Consent int

const (
	// Approve answers every prompt immediately.
	Approve Consent = iota
	// Reject declines every prompt with code 4001.
	Reject
	// Hold parks every prompt until Release is called or the caller gives up.
	Hold
)

// Default fixture values.
const (
	DefaultClientVersion = "FakeWallet/v1.0.0"
	DefaultChainID       = 1
	DefaultGasPrice      = 1_000_000_000 // 1 gwei
)

// rpcError is a JSON-RPC error with an EIP-1193 code.
type rpcError struct {
	code int
	msg  string
}

func (e *rpcError) Error() string  { return e.msg }
func (e *rpcError) ErrorCode() int { return e.code }

func errRejected() error {
	return &rpcError{code: 4001, msg: "User rejected the request."}
}

func errUnauthorized(what string) error {
	return &rpcError{code: 4100, msg: "unauthorized: " + what}
}

// Wallet is the fake wallet. All exported methods are safe for concurrent use.
type Wallet struct {
	mu sync.Mutex

	key      *ecdsa.PrivateKey
	owner    common.Address
	account  common.Address
	contract bool

	chainID       *big.Int
	clientVersion string
	gasPrice      *big.Int
	blockNumber   uint64

	initialBalance *big.Int
	balances       map[common.Address]*big.Int
	tokens         map[common.Address]map[common.Address]*big.Int

	nonce    uint64
	pending  []*types.Receipt
	receipts map[common.Hash]*types.Receipt
	autoMine bool

	authorized bool
	consent    Consent
	release    chan Consent
	prompts    chan string

	broadcasts int
	sessions   map[string]bool
	closed     []string
	calls      map[string]int

	down   bool
	server *httptest.Server
}

// Option configures a Wallet.
type Option func(*Wallet)

// WithChainID sets the initial active chain.
func WithChainID(id int64) Option {
	return func(w *Wallet) { w.chainID = big.NewInt(id) }
}

// WithClientVersion sets the web3_clientVersion answer.
func WithClientVersion(v string) Option {
	return func(w *Wallet) { w.clientVersion = v }
}

// WithContractWallet makes the account a smart-contract wallet owned by
// the signing key, as session wallets are.
func WithContractWallet() Option {
	return func(w *Wallet) { w.contract = true }
}

// WithManualMining keeps receipts pending until Mine is called.
func WithManualMining() Option {
	return func(w *Wallet) { w.autoMine = false }
}

// WithBalance funds the wallet account with wei.
func WithBalance(wei *big.Int) Option {
	return func(w *Wallet) { w.initialBalance = wei }
}

// WithAuthorized marks the account as already authorized, so eth_accounts
// answers without a prompt.
func WithAuthorized() Option {
	return func(w *Wallet) { w.authorized = true }
}

// New starts a fake wallet server that is shut down when t ends.
func New(t testing.TB, opts ...Option) *Wallet {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating wallet key: %v", err)
	}

	w := &Wallet{
		key:           key,
		owner:         crypto.PubkeyToAddress(key.PublicKey),
		chainID:       big.NewInt(DefaultChainID),
		clientVersion: DefaultClientVersion,
		gasPrice:      big.NewInt(DefaultGasPrice),
		blockNumber:   100,
		balances:      make(map[common.Address]*big.Int),
		tokens:        make(map[common.Address]map[common.Address]*big.Int),
		receipts:      make(map[common.Hash]*types.Receipt),
		autoMine:      true,
		release:       make(chan Consent, 8),
		prompts:       make(chan string, 64),
		sessions:      make(map[string]bool),
		calls:         make(map[string]int),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.useKeyLocked(key)
	if w.initialBalance != nil {
		w.balances[w.account] = new(big.Int).Set(w.initialBalance)
	}

	srv := rpc.NewServer()
	services := map[string]any{
		"eth":      &ethService{w: w},
		"personal": &personalService{w: w},
		"web3":     &web3Service{w: w},
		"wc":       &relayService{w: w},
		"session":  &sessionService{w: w},
	}
	for name, svc := range services {
		if err := srv.RegisterName(name, svc); err != nil {
			t.Fatalf("registering %s service: %v", name, err)
		}
	}

	w.server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		w.mu.Lock()
		down := w.down
		w.mu.Unlock()
		if down {
			http.Error(rw, "wallet unavailable", http.StatusServiceUnavailable)
			return
		}
		srv.ServeHTTP(rw, r)
	}))

	t.Cleanup(func() {
		w.server.CloseClientConnections()
		w.server.Close()
		srv.Stop()
	})
	return w
}

// URL is the HTTP endpoint of the wallet.
func (w *Wallet) URL() string { return w.server.URL }

// Address is the account the wallet exposes.
func (w *Wallet) Address() common.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.account
}

// Owner is the address of the signing key. It differs from Address for
// contract wallets.
func (w *Wallet) Owner() common.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.owner
}

// SwitchAccount moves the wallet to a freshly generated account, as a user
// picking another account in their wallet does. The previous account keeps
// its balance. It returns the new account.
func (w *Wallet) SwitchAccount(t testing.TB) common.Address {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating wallet key: %v", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.useKeyLocked(key)
	return w.account
}

func (w *Wallet) useKeyLocked(key *ecdsa.PrivateKey) {
	w.key = key
	w.owner = crypto.PubkeyToAddress(key.PublicKey)
	w.account = w.owner
	if w.contract {
		w.account = crypto.CreateAddress(w.owner, 0)
	}
}

// SetChainID switches the wallet's active chain.
func (w *Wallet) SetChainID(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chainID = big.NewInt(id)
}

// SetConsent changes how prompts are answered.
func (w *Wallet) SetConsent(c Consent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.consent = c
}

// SetAuthorized sets whether eth_accounts returns the account.
func (w *Wallet) SetAuthorized(ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.authorized = ok
}

// SetDown makes every request fail with HTTP 503 while true.
func (w *Wallet) SetDown(down bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.down = down
}

// Prompts delivers the method name of every prompt the wallet shows.
func (w *Wallet) Prompts() <-chan string { return w.prompts }

// Release answers one held prompt with c.
func (w *Wallet) Release(c Consent) { w.release <- c }

// Broadcasts counts transactions the wallet accepted.
func (w *Wallet) Broadcasts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.broadcasts
}

// Calls counts requests received for method.
func (w *Wallet) Calls(method string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[method]
}

// Balance returns the native balance of addr.
func (w *Wallet) Balance(addr common.Address) *big.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return new(big.Int).Set(w.balanceLocked(addr))
}

// SetBalance sets the native balance of addr.
func (w *Wallet) SetBalance(addr common.Address, wei *big.Int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[addr] = new(big.Int).Set(wei)
}

// SetTokenBalance sets holder's balance of token.
func (w *Wallet) SetTokenBalance(token, holder common.Address, amount *big.Int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tokens[token] == nil {
		w.tokens[token] = make(map[common.Address]*big.Int)
	}
	w.tokens[token][holder] = new(big.Int).Set(amount)
}

// TokenBalance returns holder's balance of token.
func (w *Wallet) TokenBalance(token, holder common.Address) *big.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return new(big.Int).Set(w.tokenBalanceLocked(token, holder))
}

// Mine publishes receipts for every pending transaction and returns how many.
func (w *Wallet) Mine() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.pending)
	for _, r := range w.pending {
		w.mineLocked(r)
	}
	w.pending = nil
	return n
}

// ActiveSessions returns relay topics and session ids still open.
func (w *Wallet) ActiveSessions() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.sessions))
	for id := range w.sessions {
		out = append(out, id)
	}
	return out
}

// ClosedSessions returns relay topics and session ids that were torn down.
func (w *Wallet) ClosedSessions() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.closed...)
}

// awaitConsent models the wallet prompt for method.
func (w *Wallet) awaitConsent(ctx context.Context, method string) error {
	w.mu.Lock()
	c := w.consent
	w.mu.Unlock()

	select {
	case w.prompts <- method:
	default:
	}

	if c == Hold {
		select {
		case c = <-w.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c == Reject {
		return errRejected()
	}
	return nil
}

func (w *Wallet) count(method string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls[method]++
}

func (w *Wallet) balanceLocked(addr common.Address) *big.Int {
	if b, ok := w.balances[addr]; ok {
		return b
	}
	return new(big.Int)
}

func (w *Wallet) tokenBalanceLocked(token, holder common.Address) *big.Int {
	if b, ok := w.tokens[token][holder]; ok {
		return b
	}
	return new(big.Int)
}

func (w *Wallet) mineLocked(r *types.Receipt) {
	w.blockNumber++
	r.BlockNumber = new(big.Int).SetUint64(w.blockNumber)
	r.BlockHash = crypto.Keccak256Hash(r.TxHash.Bytes(), r.BlockNumber.Bytes())
	w.receipts[r.TxHash] = r
}
