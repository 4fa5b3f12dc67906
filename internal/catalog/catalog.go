// Package catalog maps provider kinds to configured connectors and holds
// the one-time capability probe that decides which kinds are offered.
package catalog

import (
	"context"

	"github.com/mrz1836/tether/internal/config"
	"github.com/mrz1836/tether/internal/wallet"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// Entry is one offered provider.
type Entry struct {
	Kind      wallet.Kind
	Connector wallet.Connector
}

// Catalog is the ordered, immutable list of offered providers.
type Catalog struct {
	entries []Entry
	caps    wallet.Capabilities
}

// New builds a catalog from explicit entries. Later entries with a kind
// already present are ignored.
func New(caps wallet.Capabilities, entries ...Entry) *Catalog {
	c := &Catalog{caps: caps}
	seen := make(map[wallet.Kind]bool, len(entries))
	for _, e := range entries {
		if seen[e.Kind] || e.Connector == nil {
			continue
		}
		seen[e.Kind] = true
		c.entries = append(c.entries, e)
	}
	return c
}

// DetectCapabilities probes the configured injected wallet once.
func DetectCapabilities(ctx context.Context, cfg *config.Config) wallet.Capabilities {
	if !cfg.Providers.Injected.Enabled {
		return wallet.Capabilities{}
	}
	return injectedConnector(cfg).Detect(ctx)
}

// Build assembles the catalog from configuration. The injected kind is
// offered only when a wallet answered the probe, and the session kind is
// withheld when that wallet is itself a session wallet.
func Build(ctx context.Context, cfg *config.Config) (*Catalog, error) {
	caps := DetectCapabilities(ctx, cfg)

	var entries []Entry
	for _, name := range cfg.Providers.Order {
		kind, err := wallet.ParseKind(name)
		if err != nil {
			return nil, tethererr.Wrap(err, "providers.order")
		}
		if conn := connectorFor(kind, cfg, caps); conn != nil {
			entries = append(entries, Entry{Kind: kind, Connector: conn})
		}
	}
	return New(caps, entries...), nil
}

func connectorFor(kind wallet.Kind, cfg *config.Config, caps wallet.Capabilities) wallet.Connector {
	p := cfg.Providers
	switch kind {
	case wallet.KindInjected:
		if p.Injected.Enabled && caps.Present {
			return injectedConnector(cfg)
		}
	case wallet.KindRelay:
		if p.Relay.Enabled {
			return &wallet.RelayConnector{
				URL:       p.Relay.URL,
				ProjectID: p.Relay.ProjectID,
				App: wallet.AppMetadata{
					Name:        cfg.App.Name,
					Description: cfg.App.Description,
					URL:         cfg.App.URL,
				},
			}
		}
	case wallet.KindSession:
		if p.Session.Enabled && !caps.SessionCapable {
			return &wallet.SessionConnector{
				URL:            p.Session.URL,
				AppName:        p.Session.AppName,
				DefaultNetwork: p.Session.DefaultNetwork,
			}
		}
	}
	return nil
}

func injectedConnector(cfg *config.Config) *wallet.InjectedConnector {
	return &wallet.InjectedConnector{
		Endpoint:       cfg.Providers.Injected.Endpoint,
		SessionMarkers: cfg.Providers.Injected.SessionMarkers,
	}
}

// Kinds returns the offered kinds in order.
func (c *Catalog) Kinds() []wallet.Kind {
	out := make([]wallet.Kind, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Kind
	}
	return out
}

// Capabilities returns what the startup probe found.
func (c *Catalog) Capabilities() wallet.Capabilities {
	return c.caps
}

// Connector returns the connector for kind. Kinds that are not offered
// are unavailable rather than unknown.
func (c *Catalog) Connector(kind wallet.Kind) (wallet.Connector, error) {
	for _, e := range c.entries {
		if e.Kind == kind {
			return e.Connector, nil
		}
	}
	if !kind.IsValid() {
		_, err := wallet.ParseKind(string(kind))
		return nil, tethererr.WithCause(tethererr.ErrConnectionUnavailable, err)
	}
	return nil, tethererr.WithDetails(tethererr.ErrConnectionUnavailable, map[string]string{
		"provider": kind.String(),
		"reason":   "provider is disabled or was not detected",
	})
}
