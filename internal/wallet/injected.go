package wallet

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// detectTimeout bounds the startup probe for an injected wallet.
const detectTimeout = 2 * time.Second

// Capabilities is what a one-time probe learned about the injected wallet.
type Capabilities struct {
	Present        bool   `json:"present"`
	SessionCapable bool   `json:"sessionCapable"`
	ClientVersion  string `json:"clientVersion,omitempty"`
}

// InjectedConnector connects to a wallet the host exposes at a fixed endpoint.
type InjectedConnector struct {
	Endpoint string
	// SessionMarkers are client-version substrings that mark the injected
	// wallet as a session wallet itself.
	SessionMarkers []string
}

// Kind implements Connector.
func (c *InjectedConnector) Kind() Kind { return KindInjected }

// Detect probes the endpoint once. It never fails: an unreachable wallet
// is reported as not present.
func (c *InjectedConnector) Detect(ctx context.Context) Capabilities {
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	t, err := Dial(ctx, c.Endpoint, nil)
	if err != nil {
		return Capabilities{}
	}
	defer t.Close()

	version, err := t.ClientVersion(ctx)
	if err != nil {
		return Capabilities{}
	}

	return Capabilities{
		Present:        true,
		SessionCapable: matchesMarker(version, c.SessionMarkers),
		ClientVersion:  version,
	}
}

// Connect implements Connector. Interactive mode asks for accounts;
// silent mode only reads accounts the wallet already authorized.
func (c *InjectedConnector) Connect(ctx context.Context, req ConnectRequest) (Handle, error) {
	t, err := Dial(ctx, c.Endpoint, nil)
	if err != nil {
		return nil, err
	}

	accounts, err := c.authorize(ctx, t, req.Mode)
	if err != nil {
		t.Close()
		return nil, err
	}

	h := &InjectedHandle{baseHandle: baseHandle{transport: t, accounts: accounts}}
	if v, verr := t.ClientVersion(ctx); verr == nil {
		h.ClientVersion = v
	}
	return h, nil
}

func (c *InjectedConnector) authorize(ctx context.Context, t *Transport, mode Mode) ([]common.Address, error) {
	if mode == Silent {
		var accounts []common.Address
		if err := t.Call(ctx, &accounts, "eth_accounts"); err != nil {
			return nil, classifyConnect(err)
		}
		if len(accounts) == 0 {
			return nil, tethererr.WithDetails(tethererr.ErrConnectionRejected, map[string]string{
				"reason": "wallet has not authorized this application",
			})
		}
		return accounts, nil
	}

	accounts, err := t.RequestAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, tethererr.WithDetails(tethererr.ErrConnectionRejected, map[string]string{
			"reason": "wallet returned no accounts",
		})
	}
	return accounts, nil
}

func matchesMarker(version string, markers []string) bool {
	v := strings.ToLower(version)
	for _, m := range markers {
		if m != "" && strings.Contains(v, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
