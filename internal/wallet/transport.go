// Package wallet talks to user-controlled wallets over EIP-1193 style
// JSON-RPC and models the connected wallet as a tagged handle.
package wallet

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TxArgs is the eth_sendTransaction request object.
type TxArgs struct {
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to,omitempty"`
	Gas      *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Data     hexutil.Bytes   `json:"data,omitempty"`
}

// Transport is a JSON-RPC connection to a wallet. Wallet-scoped methods
// (accounts, signing, sending) and chain reads share the same connection,
// so chain state is always the wallet's current view.
type Transport struct {
	endpoint string
	client   *rpc.Client
	eth      *ethclient.Client

	closeOnce sync.Once
}

// Dial opens a transport to endpoint. HTTP endpoints connect lazily; the
// first request surfaces reachability problems.
func Dial(ctx context.Context, endpoint string, headers http.Header) (*Transport, error) {
	opts := []rpc.ClientOption{}
	if len(headers) > 0 {
		opts = append(opts, rpc.WithHeaders(headers))
	}

	client, err := rpc.DialOptions(ctx, endpoint, opts...)
	if err != nil {
		return nil, classifyConnect(err)
	}
	return NewTransport(endpoint, client), nil
}

// NewTransport wraps an existing rpc client.
func NewTransport(endpoint string, client *rpc.Client) *Transport {
	return &Transport{
		endpoint: endpoint,
		client:   client,
		eth:      ethclient.NewClient(client),
	}
}

// Endpoint returns the URL this transport was dialed with.
func (t *Transport) Endpoint() string {
	return t.endpoint
}

// Eth returns an ethclient bound to the wallet connection.
func (t *Transport) Eth() *ethclient.Client {
	return t.eth
}

// Close releases the connection. Safe to call more than once.
func (t *Transport) Close() {
	t.closeOnce.Do(t.client.Close)
}

// Call performs a raw request. Errors are returned unclassified.
func (t *Transport) Call(ctx context.Context, result any, method string, args ...any) error {
	return t.client.CallContext(ctx, result, method, args...)
}

// RequestAccounts asks the wallet to authorize the application (consent).
func (t *Transport) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := t.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, classifyConnect(err)
	}
	return accounts, nil
}

// Accounts lists already authorized accounts without prompting.
func (t *Transport) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := t.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, classifyRequest(err)
	}
	return accounts, nil
}

// ChainID returns the wallet's active chain.
func (t *Transport) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := t.eth.ChainID(ctx)
	if err != nil {
		return nil, classifyRequest(err)
	}
	return id, nil
}

// ClientVersion returns the wallet's self-reported client string.
func (t *Transport) ClientVersion(ctx context.Context) (string, error) {
	var v string
	if err := t.client.CallContext(ctx, &v, "web3_clientVersion"); err != nil {
		return "", classifyRequest(err)
	}
	return v, nil
}

// PersonalSign requests an EIP-191 signature over data from addr.
func (t *Transport) PersonalSign(ctx context.Context, data []byte, addr common.Address) ([]byte, error) {
	var sig hexutil.Bytes
	if err := t.client.CallContext(ctx, &sig, "personal_sign", hexutil.Bytes(data), addr); err != nil {
		return nil, classifyRequest(err)
	}
	return sig, nil
}

// SignTypedDataV4 requests an EIP-712 signature. The payload travels as a
// JSON string, which is what wallets accept for v4.
func (t *Transport) SignTypedDataV4(ctx context.Context, addr common.Address, typed apitypes.TypedData) ([]byte, error) {
	payload, err := json.Marshal(typed)
	if err != nil {
		return nil, err
	}

	var sig hexutil.Bytes
	if err := t.client.CallContext(ctx, &sig, "eth_signTypedData_v4", addr, string(payload)); err != nil {
		return nil, classifyRequest(err)
	}
	return sig, nil
}

// SendTransaction asks the wallet to sign and broadcast args.
func (t *Transport) SendTransaction(ctx context.Context, args TxArgs) (common.Hash, error) {
	var hash common.Hash
	if err := t.client.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, classifyRequest(err)
	}
	return hash, nil
}
