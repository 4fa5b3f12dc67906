// Package broker owns the wallet session lifecycle: it lists the offered
// providers, connects and disconnects, and restores the last session
// silently at startup.
package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrz1836/tether/internal/config"
	"github.com/mrz1836/tether/internal/metrics"
	"github.com/mrz1836/tether/internal/sessioncache"
	"github.com/mrz1836/tether/internal/wallet"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// teardownTimeout bounds wallet-side session teardown when the caller's
// context is already done.
const teardownTimeout = 5 * time.Second

// Catalog is the provider list the broker connects through.
type Catalog interface {
	Kinds() []wallet.Kind
	Connector(kind wallet.Kind) (wallet.Connector, error)
}

// Session is one established wallet connection.
type Session struct {
	ID          string
	Kind        wallet.Kind
	Handle      wallet.Handle
	ConnectedAt time.Time
}

// Broker serializes connection attempts and holds the active session.
type Broker struct {
	catalog   Catalog
	cache     sessioncache.Store
	log       config.LogWriter
	metrics   *metrics.Metrics
	available []wallet.Kind
	onChange  func(*Session)

	// mu guards connecting and active. Cache writes happen under it, so the
	// stored record always belongs to the active session.
	mu         sync.Mutex
	connecting bool
	active     *Session
}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the broker's logger.
func WithLogger(log config.LogWriter) Option {
	return func(b *Broker) { b.log = log }
}

// WithMetrics sets the broker's metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

// WithOnChange registers fn to observe every change of the active
// session; nil means no session. fn runs under the broker's lock, in the
// same step as the swap, so it must not call back into the broker.
func WithOnChange(fn func(*Session)) Option {
	return func(b *Broker) { b.onChange = fn }
}

// New creates a broker. The provider list is read from cat once, here.
func New(cat Catalog, cache sessioncache.Store, opts ...Option) *Broker {
	b := &Broker{
		catalog:   cat,
		cache:     cache,
		log:       config.NullLogger(),
		available: cat.Kinds(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ListAvailableProviders returns the offered kinds in catalog order.
func (b *Broker) ListAvailableProviders() []wallet.Kind {
	out := make([]wallet.Kind, len(b.available))
	copy(out, b.available)
	return out
}

// Active returns the current session, or nil.
func (b *Broker) Active() *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Connect establishes an interactive session with kind, replacing any
// active session. Only one attempt may run at a time; a concurrent call
// fails with ErrConnectionInProgress and leaves the first untouched.
func (b *Broker) Connect(ctx context.Context, kind wallet.Kind) (*Session, error) {
	if err := b.begin(); err != nil {
		return nil, err
	}
	defer b.end()

	rec, err := b.cache.Load(ctx)
	if err != nil {
		b.log.Debug("session cache unreadable, clearing: %v", err)
	}
	if err != nil || (rec != nil && rec.Kind != kind) {
		if cerr := b.cache.Clear(ctx); cerr != nil {
			return nil, cerr
		}
	}

	return b.connect(ctx, kind, wallet.ConnectRequest{Mode: wallet.Interactive})
}

// ReconnectFromCache restores the cached session without prompting.
// Every failure is logged at debug level and reported as nil.
func (b *Broker) ReconnectFromCache(ctx context.Context) *Session {
	if err := b.begin(); err != nil {
		b.log.Debug("silent reconnect skipped: %v", err)
		return nil
	}
	defer b.end()

	rec, err := b.cache.Load(ctx)
	if err != nil {
		b.log.Debug("silent reconnect: reading cache: %v", err)
		return nil
	}
	if rec == nil {
		return nil
	}

	s, err := b.connect(ctx, rec.Kind, wallet.ConnectRequest{Mode: wallet.Silent, Resume: rec.Resume})
	if err != nil {
		b.log.Debug("silent reconnect to %s failed: %v", rec.Kind, err)
		return nil
	}
	return s
}

// Disconnect ends s and clears the cache. With no active session it only
// clears the cache. A session that has already been replaced is a no-op,
// so the record of the session that replaced it survives. Teardown
// failures are logged, and only a failure to clear the cache is returned.
func (b *Broker) Disconnect(ctx context.Context, s *Session) error {
	b.mu.Lock()
	owned := s != nil && b.active == s
	if !owned && b.active != nil {
		b.mu.Unlock()
		b.log.Debug("disconnect of replaced session ignored")
		return nil
	}
	if owned {
		b.swap(nil)
	}
	cacheErr := b.cache.Clear(ctx)
	b.mu.Unlock()

	if owned {
		b.metrics.SetActiveSession("")
		b.teardown(ctx, s.Handle)
		b.log.Debug("disconnected %s session %s", s.Kind, s.ID)
	}

	if cacheErr != nil {
		return tethererr.Wrap(cacheErr, "clearing session cache")
	}
	return nil
}

// Release drops the active session and closes its local connection. The
// wallet-side session and the cache entry are kept for a later silent
// reconnect.
func (b *Broker) Release() {
	b.mu.Lock()
	s := b.active
	if s != nil {
		b.swap(nil)
	}
	b.mu.Unlock()

	if s != nil {
		b.metrics.SetActiveSession("")
		s.Handle.Close()
	}
}

// swap sets the active session. b.mu must be held.
func (b *Broker) swap(s *Session) {
	b.active = s
	if b.onChange != nil {
		b.onChange(s)
	}
}

func (b *Broker) begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connecting {
		return tethererr.ErrConnectionInProgress
	}
	b.connecting = true
	return nil
}

func (b *Broker) end() {
	b.mu.Lock()
	b.connecting = false
	b.mu.Unlock()
}

func (b *Broker) connect(ctx context.Context, kind wallet.Kind, req wallet.ConnectRequest) (*Session, error) {
	conn, err := b.catalog.Connector(kind)
	if err != nil {
		b.metrics.RecordConnect(kind.String(), req.Mode.String(), err)
		return nil, err
	}

	h, err := conn.Connect(ctx, req)
	b.metrics.RecordConnect(kind.String(), req.Mode.String(), err)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:          uuid.NewString(),
		Kind:        kind,
		Handle:      h,
		ConnectedAt: time.Now().UTC(),
	}
	if err := b.commit(ctx, s); err != nil {
		b.teardown(ctx, h)
		return nil, err
	}
	b.log.Debug("connected %s session %s (%s)", kind, s.ID, req.Mode)
	return s, nil
}

// commit persists s and makes it active. The cache is written first so a
// failed write leaves the previous session in place.
func (b *Broker) commit(ctx context.Context, s *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rec := sessioncache.Record{
		Kind:    s.Kind,
		Resume:  s.Handle.ResumeToken(),
		SavedAt: s.ConnectedAt,
	}
	b.mu.Lock()
	if err := b.cache.Save(ctx, rec); err != nil {
		b.mu.Unlock()
		return err
	}
	prev := b.active
	b.swap(s)
	b.mu.Unlock()

	b.metrics.SetActiveSession(s.Kind.String())
	if prev != nil {
		b.teardown(ctx, prev.Handle)
	}
	return nil
}

// teardown ends the wallet-side session, if any, and closes the transport.
func (b *Broker) teardown(ctx context.Context, h wallet.Handle) {
	if closer, ok := h.(wallet.SessionCloser); ok {
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		if err := closer.DisconnectSession(tctx); err != nil {
			b.log.Error("ending %s wallet session: %v", h.Kind(), err)
		}
		cancel()
	}
	h.Close()
}
