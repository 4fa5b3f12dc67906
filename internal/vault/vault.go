// Package vault encrypts wallet resume tokens at rest with an age X25519
// identity kept in the OS keyring or in a private file.
package vault

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/mrz1836/tether/internal/config"
	"github.com/mrz1836/tether/internal/fileutil"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// Keyring coordinates for the vault identity.
const (
	KeyringService = "tether"
	KeyringUser    = "vault-identity"
)

const identityFilePerm os.FileMode = 0o600

// Vault seals and opens short secrets.
type Vault struct {
	identity *age.X25519Identity
	source   string
}

// Open loads the vault identity, creating one on first use. With
// UseKeyring the keyring is tried first and the identity file is the
// fallback when the keyring is not usable.
func Open(cfg config.VaultConfig, kr Keyring) (*Vault, error) {
	if cfg.UseKeyring && kr != nil && ProbeKeyring(kr) {
		return openKeyring(kr)
	}
	return openFile(fileutil.ExpandHome(cfg.IdentityFile))
}

// New wraps an existing identity.
func New(identity *age.X25519Identity) *Vault {
	return &Vault{identity: identity, source: "memory"}
}

func openKeyring(kr Keyring) (*Vault, error) {
	secret, err := kr.Get(KeyringService, KeyringUser)
	if err == nil {
		id, perr := age.ParseX25519Identity(strings.TrimSpace(secret))
		if perr != nil {
			return nil, tethererr.WithCause(tethererr.ErrDecryptionFailed, perr)
		}
		return &Vault{identity: id, source: "keyring"}, nil
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, err
	}
	if err := kr.Set(KeyringService, KeyringUser, id.String()); err != nil {
		return nil, tethererr.Wrap(err, "storing vault identity in keyring")
	}
	return &Vault{identity: id, source: "keyring"}, nil
}

func openFile(path string) (*Vault, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from configuration
	switch {
	case err == nil:
		id, perr := age.ParseX25519Identity(strings.TrimSpace(string(data)))
		if perr != nil {
			return nil, tethererr.WithCause(tethererr.ErrDecryptionFailed, perr)
		}
		return &Vault{identity: id, source: path}, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, tethererr.Wrap(err, "reading vault identity")
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, err
	}
	if err := fileutil.WriteAtomic(path, []byte(id.String()+"\n"), identityFilePerm); err != nil {
		return nil, tethererr.Wrap(err, "writing vault identity")
	}
	return &Vault{identity: id, source: path}, nil
}

// Source names where the identity lives.
func (v *Vault) Source() string {
	return v.source
}

// Recipient returns the public half of the identity.
func (v *Vault) Recipient() string {
	return v.identity.Recipient().String()
}

// Seal encrypts plaintext into an ASCII-armored age message.
func (v *Vault) Seal(plaintext []byte) (string, error) {
	buf := &bytes.Buffer{}
	aw := armor.NewWriter(buf)

	w, err := age.Encrypt(aw, v.identity.Recipient())
	if err != nil {
		return "", err
	}
	if _, err := w.Write(plaintext); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	if err := aw.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Unseal decrypts a message produced by Seal.
func (v *Vault) Unseal(sealed string) ([]byte, error) {
	r, err := age.Decrypt(armor.NewReader(strings.NewReader(sealed)), v.identity)
	if err != nil {
		return nil, tethererr.WithCause(tethererr.ErrDecryptionFailed, err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, tethererr.WithCause(tethererr.ErrDecryptionFailed, err)
	}
	return out, nil
}
