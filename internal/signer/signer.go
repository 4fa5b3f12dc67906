// Package signer requests plain and EIP-712 signatures from the connected
// wallet and verifies them, falling back to EIP-1271 for contract wallets.
package signer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"golang.org/x/crypto/sha3"

	"github.com/mrz1836/tether/internal/erc20"
	"github.com/mrz1836/tether/internal/metrics"
	"github.com/mrz1836/tether/internal/wallet"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// Signature type labels.
const (
	TypeMessage   = "message"
	TypeTypedData = "typed_data"
	TypeVerify    = "verify"
)

const domainType = "EIP712Domain"

// SignedMessage is a signature together with what was signed.
type SignedMessage struct {
	Message   []byte              `json:"message,omitempty"`
	Signature []byte              `json:"signature"`
	Signer    common.Address      `json:"signer"`
	TypedData *apitypes.TypedData `json:"typedData,omitempty"`
}

// Reader is the chain access verification and typed-data signing need.
type Reader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	Code(ctx context.Context, addr common.Address) ([]byte, error)
	Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// Facade signs through a wallet and verifies against the chain.
type Facade struct {
	signer  wallet.Signer
	reader  Reader
	metrics *metrics.Metrics
}

// New creates a facade. m may be nil.
func New(s wallet.Signer, r Reader, m *metrics.Metrics) *Facade {
	return &Facade{signer: s, reader: r, metrics: m}
}

// HashMessage returns the EIP-191 personal message hash of message.
func HashMessage(message []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(prefix))
	hasher.Write(message)
	return hasher.Sum(nil)
}

// SignMessage asks the wallet to sign text with personal_sign. It waits
// as long as the user takes; ctx is the only bound. The signer is the
// wallet's account at the time of the request.
func (f *Facade) SignMessage(ctx context.Context, text string) (*SignedMessage, error) {
	from, err := f.signer.Account(ctx)
	if err != nil {
		return nil, err
	}

	msg := []byte(text)
	sig, err := f.signer.SignText(ctx, from, msg)
	f.metrics.RecordSignature(TypeMessage, err)
	if err != nil {
		return nil, err
	}
	return &SignedMessage{Message: msg, Signature: sig, Signer: from}, nil
}

// SignTypedData asks the wallet for an EIP-712 signature. The domain
// chain id is filled from the wallet's active chain when absent, and a
// supplied one must match it.
func (f *Facade) SignTypedData(
	ctx context.Context,
	domain apitypes.TypedDataDomain,
	types apitypes.Types,
	primaryType string,
	message apitypes.TypedDataMessage,
) (*SignedMessage, error) {
	chainID, err := f.reader.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	typed, err := BuildTypedData(domain, types, primaryType, message, chainID)
	if err != nil {
		return nil, err
	}

	from, err := f.signer.Account(ctx)
	if err != nil {
		return nil, err
	}

	sig, err := f.signer.SignTypedData(ctx, from, typed)
	f.metrics.RecordSignature(TypeTypedData, err)
	if err != nil {
		return nil, err
	}
	return &SignedMessage{Signature: sig, Signer: from, TypedData: &typed}, nil
}

// BuildTypedData validates the domain and assembles a v4 payload with a
// synthesized EIP712Domain type.
func BuildTypedData(
	domain apitypes.TypedDataDomain,
	types apitypes.Types,
	primaryType string,
	message apitypes.TypedDataMessage,
	activeChainID *big.Int,
) (apitypes.TypedData, error) {
	missing := map[string]string{}
	if domain.Name == "" {
		missing["name"] = "required"
	}
	if domain.Version == "" {
		missing["version"] = "required"
	}
	if domain.VerifyingContract == "" {
		missing["verifyingContract"] = "required"
	}
	if len(missing) > 0 {
		return apitypes.TypedData{}, tethererr.WithDetails(
			tethererr.Wrap(tethererr.ErrInvalidInput, "typed data domain is incomplete"), missing)
	}
	if _, ok := types[primaryType]; !ok || primaryType == domainType {
		return apitypes.TypedData{}, tethererr.WithDetails(
			tethererr.Wrap(tethererr.ErrInvalidInput, "typed data primary type is not defined"),
			map[string]string{"primaryType": primaryType})
	}

	switch {
	case domain.ChainId == nil:
		domain.ChainId = (*math.HexOrDecimal256)(new(big.Int).Set(activeChainID))
	case (*big.Int)(domain.ChainId).Cmp(activeChainID) != 0:
		return apitypes.TypedData{}, tethererr.WithDetails(tethererr.ErrChainMismatch, map[string]string{
			"requested": (*big.Int)(domain.ChainId).String(),
			"active":    activeChainID.String(),
		})
	}

	out := make(apitypes.Types, len(types)+1)
	for name, fields := range types {
		out[name] = fields
	}
	out[domainType] = domainFields(domain)

	return apitypes.TypedData{
		Types:       out,
		PrimaryType: primaryType,
		Domain:      domain,
		Message:     message,
	}, nil
}

func domainFields(d apitypes.TypedDataDomain) []apitypes.Type {
	var fields []apitypes.Type
	if d.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if d.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if d.ChainId != nil {
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if d.VerifyingContract != "" {
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if d.Salt != "" {
		fields = append(fields, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	return fields
}

// Verify reports whether sig is addr's signature over message.
func (f *Facade) Verify(ctx context.Context, addr common.Address, message, sig []byte) (bool, error) {
	return f.verifyHash(ctx, addr, HashMessage(message), sig)
}

// VerifyTypedData reports whether sig is addr's signature over typed.
func (f *Facade) VerifyTypedData(ctx context.Context, addr common.Address, typed apitypes.TypedData, sig []byte) (bool, error) {
	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return false, tethererr.WithCause(tethererr.ErrInvalidInput, err)
	}
	return f.verifyHash(ctx, addr, hash, sig)
}

// VerifySigned checks m against its claimed signer and returns
// ErrVerificationMismatch when it does not verify.
func (f *Facade) VerifySigned(ctx context.Context, m *SignedMessage) error {
	var (
		ok  bool
		err error
	)
	if m.TypedData != nil {
		ok, err = f.VerifyTypedData(ctx, m.Signer, *m.TypedData, m.Signature)
	} else {
		ok, err = f.Verify(ctx, m.Signer, m.Message, m.Signature)
	}
	if err == nil && !ok {
		err = tethererr.WithDetails(tethererr.ErrVerificationMismatch, map[string]string{"signer": m.Signer.Hex()})
	}
	f.metrics.RecordSignature(TypeVerify, err)
	return err
}

// verifyHash tries ecrecover first, then EIP-1271 when addr has code.
func (f *Facade) verifyHash(ctx context.Context, addr common.Address, hash, sig []byte) (bool, error) {
	if recovered, ok := recoverSigner(hash, sig); ok && recovered == addr {
		return true, nil
	}

	code, err := f.reader.Code(ctx, addr)
	if err != nil {
		return false, err
	}
	if len(code) == 0 {
		return false, nil
	}

	data, err := erc20.EncodeIsValidSignature(common.BytesToHash(hash), sig)
	if err != nil {
		return false, err
	}
	out, err := f.reader.Call(ctx, ethereum.CallMsg{To: &addr, Data: data})
	if err != nil {
		// A revert means the contract does not accept the signature.
		if errors.Is(err, tethererr.ErrNetworkUnavailable) || errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		return false, nil
	}
	return erc20.IsMagicValue(out), nil
}

// recoverSigner accepts V in either {0,1} or {27,28}.
func recoverSigner(hash, sig []byte) (common.Address, bool) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, false
	}
	normalized := bytes.Clone(sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, false
	}
	return crypto.PubkeyToAddress(*pub), true
}
