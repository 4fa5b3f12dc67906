package chain

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// IsValidAddress checks the 0x-prefixed, 40 hex character address format.
// It does not check the checksum.
func IsValidAddress(address string) bool {
	if len(address) != 42 || !strings.HasPrefix(address, "0x") {
		return false
	}
	for _, c := range address[2:] {
		if !isHexChar(c) {
			return false
		}
	}
	return true
}

// ToChecksumAddress converts an address to EIP-55 checksum format.
// Invalid input is returned unchanged.
func ToChecksumAddress(address string) string {
	if !IsValidAddress(address) {
		return address
	}

	addr := strings.ToLower(address[2:])

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(addr))
	hash := hex.EncodeToString(hasher.Sum(nil))

	result := make([]byte, 42)
	result[0] = '0'
	result[1] = 'x'
	for i := 0; i < 40; i++ {
		c := addr[i]
		if hash[i] >= '8' && c >= 'a' && c <= 'f' {
			//nolint:gosec // Safe: i bounded by loop [0,40), result size is 42
			result[i+2] = c - 32
		} else {
			//nolint:gosec // Safe: i bounded by loop [0,40), result size is 42
			result[i+2] = c
		}
	}

	return string(result)
}

// ParseAddress validates a user-supplied address. All-lowercase and
// all-uppercase addresses are accepted; mixed case must carry a valid
// EIP-55 checksum.
func ParseAddress(address string) (common.Address, error) {
	address = strings.TrimSpace(address)
	if !IsValidAddress(address) {
		return common.Address{}, tethererr.WithDetails(tethererr.ErrInvalidAddress, map[string]string{
			"address": address,
		})
	}

	body := address[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if expected := ToChecksumAddress(address); expected != address {
			return common.Address{}, tethererr.WithDetails(tethererr.ErrInvalidAddress, map[string]string{
				"address":  address,
				"expected": expected,
				"reason":   "checksum mismatch",
			})
		}
	}

	return common.HexToAddress(address), nil
}

func isHexChar(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
