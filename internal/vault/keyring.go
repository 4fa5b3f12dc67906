package vault

import (
	"github.com/zalando/go-keyring"
)

// Keyring stores small secrets outside the filesystem.
type Keyring interface {
	Set(service, user, secret string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

// OSKeyring implements Keyring with the OS keychain.
type OSKeyring struct{}

// NewOSKeyring creates a new OS keyring wrapper.
func NewOSKeyring() *OSKeyring {
	return &OSKeyring{}
}

// Set stores a secret in the OS keyring.
func (k *OSKeyring) Set(service, user, secret string) error {
	return keyring.Set(service, user, secret)
}

// Get retrieves a secret from the OS keyring.
func (k *OSKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

// Delete removes a secret from the OS keyring.
func (k *OSKeyring) Delete(service, user string) error {
	return keyring.Delete(service, user)
}

// ProbeKeyring reports whether kr can round-trip a value.
func ProbeKeyring(kr Keyring) bool {
	const (
		probeService = "tether-probe"
		probeUser    = "probe"
		probeValue   = "ok"
	)

	if err := kr.Set(probeService, probeUser, probeValue); err != nil {
		return false
	}
	val, err := kr.Get(probeService, probeUser)
	_ = kr.Delete(probeService, probeUser)
	return err == nil && val == probeValue
}
