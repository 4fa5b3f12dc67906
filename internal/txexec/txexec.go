// Package txexec submits native and ERC-20 transfers through the connected
// wallet and waits for their receipts.
package txexec

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mrz1836/tether/internal/config"
	"github.com/mrz1836/tether/internal/erc20"
	"github.com/mrz1836/tether/internal/metrics"
	"github.com/mrz1836/tether/internal/wallet"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// Transaction type labels.
const (
	TypeNative = "native"
	TypeToken  = "token"
)

// Phase labels.
const (
	PhaseSubmitted = "submitted"
	PhaseConfirmed = "confirmed"
)

// DefaultPollInterval is used when Config.PollInterval is not positive.
const DefaultPollInterval = 2 * time.Second

var errWaitBound = errors.New("confirmation wait bound reached")

// Reader is the chain access the executor needs.
type Reader interface {
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Config controls receipt polling.
type Config struct {
	PollInterval time.Duration
	// ConfirmationTimeout bounds Wait. Zero waits until ctx ends.
	ConfirmationTimeout time.Duration
}

// Request is a transaction as handed to the wallet.
type Request struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Value    *big.Int       `json:"value"`
	Data     []byte         `json:"data,omitempty"`
	GasLimit uint64         `json:"gasLimit"`
	GasPrice *big.Int       `json:"gasPrice"`
}

// Pending is a broadcast transaction awaiting its receipt.
type Pending struct {
	Hash    common.Hash `json:"hash"`
	Type    string      `json:"type"`
	Request Request     `json:"request"`
}

// Executor sends transactions for one session.
type Executor struct {
	signer  wallet.Signer
	reader  Reader
	cfg     Config
	metrics *metrics.Metrics
	logger  config.LogWriter
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l config.LogWriter) Option {
	return func(e *Executor) { e.logger = l }
}

// New creates an executor.
func New(s wallet.Signer, r Reader, cfg Config, opts ...Option) *Executor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	e := &Executor{signer: s, reader: r, cfg: cfg, logger: config.NullLogger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SendNative transfers amount wei to to and waits for the receipt. A zero
// gasLimit is estimated by the wallet's node.
func (e *Executor) SendNative(ctx context.Context, to common.Address, amount *big.Int, gasLimit uint64) (*types.Receipt, error) {
	p, err := e.SubmitNative(ctx, to, amount, gasLimit)
	if err != nil {
		return nil, err
	}
	return e.Wait(ctx, p)
}

// SendTokenTransfer transfers amount base units of token to to and waits
// for the receipt.
func (e *Executor) SendTokenTransfer(ctx context.Context, token, to common.Address, amount *big.Int, gasLimit uint64) (*types.Receipt, error) {
	p, err := e.SubmitTokenTransfer(ctx, token, to, amount, gasLimit)
	if err != nil {
		return nil, err
	}
	return e.Wait(ctx, p)
}

// SubmitNative checks funds and hands a native transfer to the wallet.
func (e *Executor) SubmitNative(ctx context.Context, to common.Address, amount *big.Int, gasLimit uint64) (*Pending, error) {
	p, err := e.submitNative(ctx, to, amount, gasLimit)
	e.metrics.RecordTransaction(TypeNative, PhaseSubmitted, err)
	return p, err
}

func (e *Executor) submitNative(ctx context.Context, to common.Address, amount *big.Int, gasLimit uint64) (*Pending, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	from, err := e.signer.Account(ctx)
	if err != nil {
		return nil, err
	}

	req := Request{From: from, To: to, Value: new(big.Int).Set(amount), GasLimit: gasLimit}
	if err := e.prepare(ctx, &req); err != nil {
		return nil, err
	}
	return e.submit(ctx, TypeNative, req)
}

// SubmitTokenTransfer checks token and gas funds and hands an ERC-20
// transfer to the wallet. The native value is zero.
func (e *Executor) SubmitTokenTransfer(ctx context.Context, token, to common.Address, amount *big.Int, gasLimit uint64) (*Pending, error) {
	p, err := e.submitToken(ctx, token, to, amount, gasLimit)
	e.metrics.RecordTransaction(TypeToken, PhaseSubmitted, err)
	return p, err
}

func (e *Executor) submitToken(ctx context.Context, token, to common.Address, amount *big.Int, gasLimit uint64) (*Pending, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	data, err := erc20.EncodeTransfer(to, amount)
	if err != nil {
		return nil, err
	}

	from, err := e.signer.Account(ctx)
	if err != nil {
		return nil, err
	}

	held, err := e.reader.TokenBalance(ctx, token, from)
	if err != nil {
		return nil, err
	}
	if held.Cmp(amount) < 0 {
		return nil, insufficient(amount, held, map[string]string{"token": token.Hex()})
	}

	req := Request{From: from, To: token, Value: new(big.Int), Data: data, GasLimit: gasLimit}
	if err := e.prepare(ctx, &req); err != nil {
		return nil, err
	}
	return e.submit(ctx, TypeToken, req)
}

// prepare fills gas price and limit and checks the native balance of
// req.From covers value plus the maximum fee.
func (e *Executor) prepare(ctx context.Context, req *Request) error {
	from := req.From

	price, err := e.reader.GasPrice(ctx)
	if err != nil {
		return err
	}
	req.GasPrice = price

	if req.GasLimit == 0 {
		to := req.To
		gas, err := e.reader.EstimateGas(ctx, ethereum.CallMsg{
			From:  from,
			To:    &to,
			Value: req.Value,
			Data:  req.Data,
		})
		if err != nil {
			return err
		}
		req.GasLimit = gas
	}

	required := new(big.Int).Mul(new(big.Int).SetUint64(req.GasLimit), price)
	required.Add(required, req.Value)

	available, err := e.reader.Balance(ctx, from)
	if err != nil {
		return err
	}
	if available.Cmp(required) < 0 {
		return insufficient(required, available, nil)
	}
	return nil
}

// submit broadcasts exactly once.
func (e *Executor) submit(ctx context.Context, txType string, req Request) (*Pending, error) {
	gas := hexutil.Uint64(req.GasLimit)
	to := req.To
	args := wallet.TxArgs{
		From:     req.From,
		To:       &to,
		Gas:      &gas,
		GasPrice: (*hexutil.Big)(req.GasPrice),
		Value:    (*hexutil.Big)(req.Value),
		Data:     req.Data,
	}

	hash, err := e.signer.SendTransaction(ctx, args)
	if err != nil {
		e.logger.Debug("%s transaction to %s not submitted: %v", txType, req.To.Hex(), err)
		return nil, err
	}
	e.logger.Debug("%s transaction %s submitted", txType, hash.Hex())
	return &Pending{Hash: hash, Type: txType, Request: req}, nil
}

// Wait polls for the receipt of p. A receipt with failed status is
// returned together with ErrTxReverted.
func (e *Executor) Wait(ctx context.Context, p *Pending) (*types.Receipt, error) {
	r, err := e.wait(ctx, p.Hash)
	e.metrics.RecordTransaction(p.Type, PhaseConfirmed, err)
	return r, err
}

func (e *Executor) wait(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	waitCtx := ctx
	if e.cfg.ConfirmationTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeoutCause(ctx, e.cfg.ConfirmationTimeout, errWaitBound)
		defer cancel()
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		r, err := e.reader.Receipt(waitCtx, hash)
		switch {
		case waitCtx.Err() != nil:
			return nil, e.waitEnded(waitCtx, hash)
		case err == nil:
			if r.Status == types.ReceiptStatusFailed {
				return r, tethererr.WithDetails(tethererr.ErrTxReverted, map[string]string{
					"hash":     hash.Hex(),
					"gas_used": strconv.FormatUint(r.GasUsed, 10),
				})
			}
			return r, nil
		case errors.Is(err, tethererr.ErrTransactionNotFound), errors.Is(err, tethererr.ErrNetworkUnavailable):
			e.logger.Debug("receipt for %s not available yet: %v", hash.Hex(), err)
		default:
			return nil, err
		}

		select {
		case <-waitCtx.Done():
			return nil, e.waitEnded(waitCtx, hash)
		case <-ticker.C:
		}
	}
}

func (e *Executor) waitEnded(waitCtx context.Context, hash common.Hash) error {
	if errors.Is(context.Cause(waitCtx), errWaitBound) {
		return tethererr.WithDetails(tethererr.ErrConfirmationTimeout, map[string]string{
			"hash":    hash.Hex(),
			"timeout": e.cfg.ConfirmationTimeout.String(),
		})
	}
	return waitCtx.Err()
}

// Receipt re-queries the receipt of hash once, for use after an
// interrupted Wait.
func (e *Executor) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return e.reader.Receipt(ctx, hash)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return tethererr.WithDetails(tethererr.ErrInvalidAmount, map[string]string{
			"reason": "amount must be zero or positive",
		})
	}
	return nil
}

func insufficient(required, available *big.Int, extra map[string]string) error {
	details := map[string]string{
		"required":  required.String(),
		"available": available.String(),
	}
	for k, v := range extra {
		details[k] = v
	}
	return tethererr.WithDetails(tethererr.ErrInsufficientFunds, details)
}
