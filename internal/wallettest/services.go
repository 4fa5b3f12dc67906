package wallettest

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"

	"github.com/mrz1836/tether/internal/erc20"
	"github.com/mrz1836/tether/internal/wallet"
)

// Gas used by the transactions the fake wallet understands.
const (
	GasNativeTransfer uint64 = 21_000
	GasTokenTransfer  uint64 = 52_000
)

// contractCode is what eth_getCode returns for a contract wallet account.
//
//nolint:gochecknoglobals // Fixture bytecode
var contractCode = []byte{0x60, 0x80, 0x60, 0x40, 0x52}

// CallArgs is the eth_call / eth_estimateGas request object.
type CallArgs struct {
	From     *common.Address `json:"from"`
	To       *common.Address `json:"to"`
	Gas      *hexutil.Uint64 `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
	Value    *hexutil.Big    `json:"value"`
	Input    hexutil.Bytes   `json:"input"`
	Data     hexutil.Bytes   `json:"data"`
}

func (a CallArgs) payload() []byte {
	if len(a.Input) > 0 {
		return a.Input
	}
	return a.Data
}

type ethService struct{ w *Wallet }

func (s *ethService) ChainId() *hexutil.Big { //nolint:revive,stylecheck // JSON-RPC name is eth_chainId
	s.w.count("eth_chainId")
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return (*hexutil.Big)(new(big.Int).Set(s.w.chainID))
}

func (s *ethService) Accounts() []common.Address {
	s.w.count("eth_accounts")
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if !s.w.authorized {
		return []common.Address{}
	}
	return []common.Address{s.w.account}
}

func (s *ethService) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	s.w.count("eth_requestAccounts")
	if err := s.w.awaitConsent(ctx, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.authorized = true
	return []common.Address{s.w.account}, nil
}

func (s *ethService) GetBalance(addr common.Address, _ *string) *hexutil.Big {
	s.w.count("eth_getBalance")
	return (*hexutil.Big)(s.w.Balance(addr))
}

func (s *ethService) GasPrice() *hexutil.Big {
	s.w.count("eth_gasPrice")
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return (*hexutil.Big)(new(big.Int).Set(s.w.gasPrice))
}

func (s *ethService) BlockNumber() hexutil.Uint64 {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return hexutil.Uint64(s.w.blockNumber)
}

func (s *ethService) GetCode(addr common.Address, _ *string) hexutil.Bytes {
	s.w.count("eth_getCode")
	if s.w.contract && addr == s.w.Address() {
		return contractCode
	}
	return hexutil.Bytes{}
}

func (s *ethService) Call(args CallArgs, _ *string) (hexutil.Bytes, error) {
	s.w.count("eth_call")
	if args.To == nil {
		return hexutil.Bytes{}, nil
	}
	data := args.payload()

	if s.w.contract && *args.To == s.w.Address() {
		return s.w.isValidSignature(data)
	}

	method, decoded, err := erc20.DecodeCall(data)
	if err != nil || method != "balanceOf" {
		return hexutil.Bytes{}, nil
	}
	holder, _ := decoded[0].(common.Address)
	token, _ := erc20.Token()
	return token.Methods["balanceOf"].Outputs.Pack(s.w.TokenBalance(*args.To, holder))
}

func (s *ethService) EstimateGas(args CallArgs, _ *string) (hexutil.Uint64, error) {
	s.w.count("eth_estimateGas")
	if len(args.payload()) > 0 {
		return hexutil.Uint64(GasTokenTransfer), nil
	}
	return hexutil.Uint64(GasNativeTransfer), nil
}

func (s *ethService) GetTransactionReceipt(hash common.Hash) (*types.Receipt, error) {
	s.w.count("eth_getTransactionReceipt")
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return s.w.receipts[hash], nil
}

func (s *ethService) SendTransaction(ctx context.Context, args wallet.TxArgs) (common.Hash, error) {
	s.w.count("eth_sendTransaction")
	if err := s.w.awaitConsent(ctx, "eth_sendTransaction"); err != nil {
		return common.Hash{}, err
	}
	return s.w.broadcast(args)
}

//nolint:revive,stylecheck // JSON-RPC name is eth_signTypedData_v4
func (s *ethService) SignTypedData_v4(ctx context.Context, addr common.Address, payload string) (hexutil.Bytes, error) {
	s.w.count("eth_signTypedData_v4")
	if addr != s.w.Address() {
		return nil, errUnauthorized("unknown account")
	}

	var typed apitypes.TypedData
	if err := json.Unmarshal([]byte(payload), &typed); err != nil {
		return nil, &rpcError{code: -32602, msg: "invalid typed data: " + err.Error()}
	}

	s.w.mu.Lock()
	active := new(big.Int).Set(s.w.chainID)
	s.w.mu.Unlock()
	if typed.Domain.ChainId != nil && (*big.Int)(typed.Domain.ChainId).Cmp(active) != 0 {
		return nil, &rpcError{code: -32602, msg: "chainId does not match the active chain"}
	}

	if err := s.w.awaitConsent(ctx, "eth_signTypedData_v4"); err != nil {
		return nil, err
	}

	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, &rpcError{code: -32602, msg: err.Error()}
	}
	return s.w.sign(hash)
}

type personalService struct{ w *Wallet }

// Sign implements personal_sign.
func (s *personalService) Sign(ctx context.Context, data hexutil.Bytes, addr common.Address) (hexutil.Bytes, error) {
	s.w.count("personal_sign")
	if addr != s.w.Address() {
		return nil, errUnauthorized("unknown account")
	}
	if err := s.w.awaitConsent(ctx, "personal_sign"); err != nil {
		return nil, err
	}
	return s.w.sign(accounts.TextHash(data))
}

type web3Service struct{ w *Wallet }

func (s *web3Service) ClientVersion() string {
	s.w.count("web3_clientVersion")
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return s.w.clientVersion
}

// RelayApproval is the answer to a relay pairing proposal.
type RelayApproval struct {
	Topic    string              `json:"topic"`
	Accounts []common.Address    `json:"accounts"`
	ChainID  *hexutil.Big        `json:"chainId"`
	Peer     wallet.PeerMetadata `json:"peer"`
}

type relayService struct{ w *Wallet }

func (s *relayService) SessionPropose(ctx context.Context, _ wallet.AppMetadata) (*RelayApproval, error) {
	s.w.count("wc_sessionPropose")
	if err := s.w.awaitConsent(ctx, "wc_sessionPropose"); err != nil {
		return nil, err
	}
	return s.approval(s.w.openSession()), nil
}

func (s *relayService) SessionResume(topic string) (*RelayApproval, error) {
	s.w.count("wc_sessionResume")
	if !s.w.hasSession(topic) {
		return nil, errUnauthorized("unknown topic")
	}
	return s.approval(topic), nil
}

func (s *relayService) SessionDelete(topic string) (bool, error) {
	s.w.count("wc_sessionDelete")
	return s.w.closeSession(topic), nil
}

func (s *relayService) approval(topic string) *RelayApproval {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return &RelayApproval{
		Topic:    topic,
		Accounts: []common.Address{s.w.account},
		ChainID:  (*hexutil.Big)(new(big.Int).Set(s.w.chainID)),
		Peer:     wallet.PeerMetadata{Name: s.w.clientVersion, URL: "https://wallet.test"},
	}
}

// SessionGrant is the answer to a session sign-in.
type SessionGrant struct {
	SessionID string         `json:"sessionId"`
	Address   common.Address `json:"address"`
	ChainID   *hexutil.Big   `json:"chainId"`
	Network   string         `json:"network"`
}

type sessionOpenParams struct {
	AppName string `json:"appName"`
	Network string `json:"network"`
}

type sessionService struct{ w *Wallet }

func (s *sessionService) Open(ctx context.Context, params sessionOpenParams) (*SessionGrant, error) {
	s.w.count("session_open")
	if err := s.w.awaitConsent(ctx, "session_open"); err != nil {
		return nil, err
	}
	return s.grant(s.w.openSession(), params.Network), nil
}

func (s *sessionService) Resume(id string) (*SessionGrant, error) {
	s.w.count("session_resume")
	if !s.w.hasSession(id) {
		return nil, errUnauthorized("unknown session")
	}
	return s.grant(id, ""), nil
}

func (s *sessionService) Close(id string) (bool, error) {
	s.w.count("session_close")
	return s.w.closeSession(id), nil
}

func (s *sessionService) grant(id, network string) *SessionGrant {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return &SessionGrant{
		SessionID: id,
		Address:   s.w.account,
		ChainID:   (*hexutil.Big)(new(big.Int).Set(s.w.chainID)),
		Network:   network,
	}
}

func (w *Wallet) openSession() string {
	id := uuid.NewString()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sessions[id] = true
	w.authorized = true
	return id
}

func (w *Wallet) hasSession(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessions[id]
}

func (w *Wallet) closeSession(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.sessions[id] {
		return false
	}
	delete(w.sessions, id)
	w.closed = append(w.closed, id)
	return true
}

// sign produces a 65-byte signature with V in {27, 28}.
func (w *Wallet) sign(hash []byte) (hexutil.Bytes, error) {
	w.mu.Lock()
	key := w.key
	w.mu.Unlock()

	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// isValidSignature answers EIP-1271 calls against the contract wallet.
func (w *Wallet) isValidSignature(data []byte) (hexutil.Bytes, error) {
	v, err := erc20.SignatureValidator()
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, &rpcError{code: 3, msg: "execution reverted"}
	}
	method, err := v.MethodById(data)
	if err != nil {
		return nil, &rpcError{code: 3, msg: "execution reverted"}
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, &rpcError{code: 3, msg: "execution reverted"}
	}

	hash, _ := args[0].([32]byte)
	sig, _ := args[1].([]byte)

	result := [4]byte{0xff, 0xff, 0xff, 0xff}
	if len(sig) == crypto.SignatureLength {
		normalized := bytes.Clone(sig)
		if normalized[crypto.RecoveryIDOffset] >= 27 {
			normalized[crypto.RecoveryIDOffset] -= 27
		}
		if pub, err := crypto.SigToPub(hash[:], normalized); err == nil && crypto.PubkeyToAddress(*pub) == w.Owner() {
			result = erc20.MagicValue
		}
	}
	return method.Outputs.Pack(result)
}

// broadcast applies a transaction to the in-memory state and records its receipt.
func (w *Wallet) broadcast(args wallet.TxArgs) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if args.From != w.account {
		return common.Hash{}, errUnauthorized("unknown account")
	}
	if args.To == nil {
		return common.Hash{}, &rpcError{code: -32602, msg: "contract creation is not supported"}
	}

	value := new(big.Int)
	if args.Value != nil {
		value = args.Value.ToInt()
	}
	gasPrice := new(big.Int).Set(w.gasPrice)
	if args.GasPrice != nil {
		gasPrice = args.GasPrice.ToInt()
	}

	gasUsed := GasNativeTransfer
	var tokenTo common.Address
	var tokenAmount *big.Int
	if len(args.Data) > 0 {
		method, decoded, err := erc20.DecodeCall(args.Data)
		if err != nil || method != "transfer" {
			return common.Hash{}, &rpcError{code: -32602, msg: "unsupported call data"}
		}
		gasUsed = GasTokenTransfer
		tokenTo, _ = decoded[0].(common.Address)
		tokenAmount, _ = decoded[1].(*big.Int)
	}
	gasLimit := gasUsed
	if args.Gas != nil {
		gasLimit = uint64(*args.Gas)
	}
	if gasLimit < gasUsed {
		return common.Hash{}, &rpcError{code: -32000, msg: "intrinsic gas too low"}
	}

	maxCost := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), gasPrice)
	maxCost.Add(maxCost, value)
	if w.balanceLocked(args.From).Cmp(maxCost) < 0 {
		return common.Hash{}, &rpcError{code: -32000, msg: "insufficient funds for gas * price + value"}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    w.nonce,
		To:       args.To,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     args.Data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(w.chainID), w.key)
	if err != nil {
		return common.Hash{}, err
	}
	w.nonce++
	w.broadcasts++

	fee := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), gasPrice)
	status := types.ReceiptStatusSuccessful

	from := w.balanceLocked(args.From)
	w.balances[args.From] = new(big.Int).Sub(new(big.Int).Sub(from, fee), value)
	w.balances[*args.To] = new(big.Int).Add(w.balanceLocked(*args.To), value)

	if tokenAmount != nil {
		held := w.tokenBalanceLocked(*args.To, args.From)
		if held.Cmp(tokenAmount) < 0 {
			status = types.ReceiptStatusFailed
		} else {
			if w.tokens[*args.To] == nil {
				w.tokens[*args.To] = make(map[common.Address]*big.Int)
			}
			w.tokens[*args.To][args.From] = new(big.Int).Sub(held, tokenAmount)
			w.tokens[*args.To][tokenTo] = new(big.Int).Add(w.tokenBalanceLocked(*args.To, tokenTo), tokenAmount)
		}
	}

	receipt := &types.Receipt{
		Type:              types.LegacyTxType,
		Status:            status,
		CumulativeGasUsed: gasUsed,
		Bloom:             types.Bloom{},
		Logs:              []*types.Log{},
		TxHash:            signed.Hash(),
		GasUsed:           gasUsed,
		EffectiveGasPrice: gasPrice,
		TransactionIndex:  0,
	}
	if w.autoMine {
		w.mineLocked(receipt)
	} else {
		w.pending = append(w.pending, receipt)
	}

	return signed.Hash(), nil
}
