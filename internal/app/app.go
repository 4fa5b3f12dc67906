// Package app wires the wallet session stack into one object: provider
// catalog, session cache, broker, and the per-session provider, signer and
// transaction executor that are swapped whenever the session changes.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/mrz1836/tether/internal/broker"
	"github.com/mrz1836/tether/internal/cache"
	"github.com/mrz1836/tether/internal/catalog"
	"github.com/mrz1836/tether/internal/chain"
	"github.com/mrz1836/tether/internal/config"
	"github.com/mrz1836/tether/internal/metrics"
	"github.com/mrz1836/tether/internal/provider"
	"github.com/mrz1836/tether/internal/sessioncache"
	"github.com/mrz1836/tether/internal/signer"
	"github.com/mrz1836/tether/internal/txexec"
	"github.com/mrz1836/tether/internal/vault"
	"github.com/mrz1836/tether/internal/wallet"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// Catalog is what the app needs from a provider catalog.
type Catalog interface {
	broker.Catalog
	Capabilities() wallet.Capabilities
}

// active is everything derived from one session. It is replaced as a
// whole, never mutated.
type active struct {
	session  *broker.Session
	provider *provider.Provider
	signer   *signer.Facade
	executor *txexec.Executor
}

// App is the composition root.
type App struct {
	cfg      *config.Config
	log      *config.Logger
	metrics  *metrics.Metrics
	guard    *chain.ReadGuard
	catalog  Catalog
	store    sessioncache.Store
	broker   *broker.Broker
	balances *cache.BalanceCache

	mu     sync.RWMutex
	active *active
}

type options struct {
	logger  *config.Logger
	metrics *metrics.Metrics
	keyring vault.Keyring
	catalog Catalog
	store   sessioncache.Store
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger. The app does not close it.
func WithLogger(l *config.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics shares a metrics set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithKeyring overrides the OS keyring used by the vault.
func WithKeyring(kr vault.Keyring) Option {
	return func(o *options) { o.keyring = kr }
}

// WithCatalog replaces the catalog built from configuration.
func WithCatalog(c Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithStore replaces the session cache opened from configuration.
func WithStore(s sessioncache.Store) Option {
	return func(o *options) { o.store = s }
}

// New builds the object graph. Provider detection runs here, once.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = config.NullLogger()
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	if o.keyring == nil {
		o.keyring = vault.NewOSKeyring()
	}

	if o.catalog == nil {
		cat, err := catalog.Build(ctx, cfg)
		if err != nil {
			return nil, err
		}
		o.catalog = cat
	}

	if o.store == nil {
		var sealer sessioncache.Sealer
		if cfg.Vault.Enabled {
			v, err := vault.Open(cfg.Vault, o.keyring)
			if err != nil {
				return nil, err
			}
			o.logger.Debug("vault identity loaded from %s", v.Source())
			sealer = v
		}

		store, err := sessioncache.Open(cfg.SessionCache, sealer)
		if err != nil {
			return nil, err
		}
		o.store = store
	}

	a := &App{
		cfg:      cfg,
		log:      o.logger,
		metrics:  o.metrics,
		guard:    chain.NewReadGuard(GuardConfig(cfg.Reads), o.metrics.RecordRead),
		catalog:  o.catalog,
		store:    o.store,
		balances: cache.NewBalanceCache(),
	}
	a.broker = broker.New(o.catalog, o.store,
		broker.WithLogger(o.logger.Named("broker")),
		broker.WithMetrics(o.metrics),
		broker.WithOnChange(a.activate),
	)
	return a, nil
}

// GuardConfig maps read settings onto the read guard.
func GuardConfig(r config.ReadsConfig) chain.GuardConfig {
	g := chain.DefaultGuardConfig()
	if r.RetryAttempts > 0 {
		g.Retry.MaxAttempts = r.RetryAttempts
	}
	g.RatePerSecond = r.RatePerSecond
	g.Burst = r.Burst
	g.Breaker.ConsecutiveFailures = r.BreakerFailures
	g.Breaker.OpenTimeout = time.Duration(r.BreakerOpenSeconds) * time.Second
	return g
}

// Start restores the cached session silently. It returns the restored
// session or nil; a failed restore is not an error.
func (a *App) Start(ctx context.Context) *broker.Session {
	s := a.broker.ReconnectFromCache(ctx)
	if s != nil {
		a.log.Debug("restored %s session %s", s.Kind, s.ID)
	}
	return s
}

// Close releases the local connection. The wallet-side session and the
// cache entry are kept so the next Start can resume.
func (a *App) Close() error {
	a.broker.Release()
	return nil
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config { return a.cfg }

// Metrics returns the app's metrics.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Guard returns the shared read guard.
func (a *App) Guard() *chain.ReadGuard { return a.guard }

// Providers lists the offered provider kinds.
func (a *App) Providers() []wallet.Kind {
	return a.broker.ListAvailableProviders()
}

// Capabilities reports what was detected about the injected wallet.
func (a *App) Capabilities() wallet.Capabilities {
	return a.catalog.Capabilities()
}

// Session returns the active session, or nil.
func (a *App) Session() *broker.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.active == nil {
		return nil
	}
	return a.active.session
}

// Provider returns the active provider or ErrNoActiveSession.
func (a *App) Provider() (*provider.Provider, error) {
	cur, err := a.current()
	if err != nil {
		return nil, err
	}
	return cur.provider, nil
}

// Signer returns the active signing facade or ErrNoActiveSession.
func (a *App) Signer() (*signer.Facade, error) {
	cur, err := a.current()
	if err != nil {
		return nil, err
	}
	return cur.signer, nil
}

// Executor returns the active transaction executor or ErrNoActiveSession.
func (a *App) Executor() (*txexec.Executor, error) {
	cur, err := a.current()
	if err != nil {
		return nil, err
	}
	return cur.executor, nil
}

func (a *App) current() (*active, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.active == nil {
		return nil, tethererr.WithSuggestion(tethererr.ErrNoActiveSession, "Run 'tether connect' first")
	}
	return a.active, nil
}

// activate derives the per-session objects from s and swaps them in, or
// drops them when s is nil. The broker calls it in the same step as its
// own session swap.
func (a *App) activate(s *broker.Session) {
	var next *active
	if s != nil {
		p := provider.New(s,
			provider.WithGuard(a.guard),
			provider.WithBalanceCache(a.balances),
			provider.WithMetrics(a.metrics),
		)
		next = &active{
			session:  s,
			provider: p,
			signer:   signer.New(p.Signer(), p, a.metrics),
			executor: txexec.New(p.Signer(), p, txexec.Config{
				PollInterval:        a.cfg.PollInterval(),
				ConfirmationTimeout: a.cfg.ConfirmationTimeout(),
			}, txexec.WithMetrics(a.metrics), txexec.WithLogger(a.log.Named("tx"))),
		}
	}

	a.mu.Lock()
	a.active = next
	a.mu.Unlock()
}
