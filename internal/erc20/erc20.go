// Package erc20 encodes and decodes ERC-20 and EIP-1271 contract calls.
// Every function is pure.
package erc20

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ABI is the minimal ERC-20 interface tether calls.
const ABI = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"symbol","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

// SignatureValidatorABI is the EIP-1271 contract signature interface.
const SignatureValidatorABI = `[
	{"type":"function","name":"isValidSignature","stateMutability":"view",
	 "inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],
	 "outputs":[{"name":"magicValue","type":"bytes4"}]}
]`

// MagicValue is what isValidSignature returns for a valid signature.
//
//nolint:gochecknoglobals // EIP-1271 constant
var MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

//nolint:gochecknoglobals // Parsed once on first use
var (
	parseOnce    sync.Once
	tokenABI     abi.ABI
	validatorABI abi.ABI
	errParseABI  error
)

func load() (abi.ABI, abi.ABI, error) {
	parseOnce.Do(func() {
		tokenABI, errParseABI = abi.JSON(strings.NewReader(ABI))
		if errParseABI != nil {
			return
		}
		validatorABI, errParseABI = abi.JSON(strings.NewReader(SignatureValidatorABI))
	})
	return tokenABI, validatorABI, errParseABI
}

// Token returns the parsed ERC-20 ABI.
func Token() (abi.ABI, error) {
	t, _, err := load()
	return t, err
}

// SignatureValidator returns the parsed EIP-1271 ABI.
func SignatureValidator() (abi.ABI, error) {
	_, v, err := load()
	return v, err
}

// Encode packs a call to an ERC-20 method with the ordered args.
func Encode(method string, args ...any) ([]byte, error) {
	t, err := Token()
	if err != nil {
		return nil, err
	}
	data, err := t.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", method, err)
	}
	return data, nil
}

// EncodeTransfer builds transfer(to, amount) call data.
func EncodeTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil {
		amount = new(big.Int)
	}
	return Encode("transfer", to, amount)
}

// EncodeBalanceOf builds balanceOf(owner) call data.
func EncodeBalanceOf(owner common.Address) ([]byte, error) {
	return Encode("balanceOf", owner)
}

// DecodeBalance unpacks the uint256 returned by balanceOf.
func DecodeBalance(output []byte) (*big.Int, error) {
	t, err := Token()
	if err != nil {
		return nil, err
	}
	values, err := t.Unpack("balanceOf", output)
	if err != nil {
		return nil, fmt.Errorf("decoding balanceOf: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decoding balanceOf: unexpected %T", values[0]) //nolint:err113 // type detail
	}
	return balance, nil
}

// EncodeIsValidSignature builds isValidSignature(hash, signature) call data.
func EncodeIsValidSignature(hash common.Hash, signature []byte) ([]byte, error) {
	v, err := SignatureValidator()
	if err != nil {
		return nil, err
	}
	return v.Pack("isValidSignature", [32]byte(hash), signature)
}

// IsMagicValue reports whether an isValidSignature result signals validity.
func IsMagicValue(output []byte) bool {
	v, err := SignatureValidator()
	if err != nil {
		return false
	}
	values, err := v.Unpack("isValidSignature", output)
	if err != nil || len(values) == 0 {
		return false
	}
	magic, ok := values[0].([4]byte)
	return ok && magic == MagicValue
}

// DecodeCall identifies an ERC-20 call and unpacks its arguments.
func DecodeCall(data []byte) (string, []any, error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("call data too short: %d bytes", len(data)) //nolint:err113 // length detail
	}
	t, err := Token()
	if err != nil {
		return "", nil, err
	}
	method, err := t.MethodById(data[:4])
	if err != nil {
		return "", nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return "", nil, fmt.Errorf("decoding %s: %w", method.Name, err)
	}
	return method.Name, args, nil
}
