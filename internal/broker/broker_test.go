package broker_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/tether/internal/broker"
	"github.com/mrz1836/tether/internal/catalog"
	"github.com/mrz1836/tether/internal/sessioncache"
	"github.com/mrz1836/tether/internal/wallet"
	"github.com/mrz1836/tether/internal/wallettest"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

var errDiskFull = errors.New("no space left on device")

type fixture struct {
	wallet  *wallettest.Wallet
	catalog *catalog.Catalog
	store   *sessioncache.FileStore
}

func newFixture(t *testing.T, opts ...wallettest.Option) *fixture {
	t.Helper()
	w := wallettest.New(t, opts...)
	return &fixture{
		wallet: w,
		catalog: catalog.New(wallet.Capabilities{Present: true},
			catalog.Entry{Kind: wallet.KindInjected, Connector: &wallet.InjectedConnector{Endpoint: w.URL()}},
			catalog.Entry{Kind: wallet.KindRelay, Connector: &wallet.RelayConnector{URL: w.URL()}},
			catalog.Entry{Kind: wallet.KindSession, Connector: &wallet.SessionConnector{URL: w.URL(), DefaultNetwork: "polygon"}},
		),
		store: sessioncache.NewFileStore(filepath.Join(t.TempDir(), "session.json")),
	}
}

func (f *fixture) broker(opts ...broker.Option) *broker.Broker {
	return broker.New(f.catalog, f.store, opts...)
}

func (f *fixture) cached(t *testing.T) *sessioncache.Record {
	t.Helper()
	rec, err := f.store.Load(context.Background())
	require.NoError(t, err)
	return rec
}

type countingCatalog struct {
	*catalog.Catalog
	calls atomic.Int32
}

func (c *countingCatalog) Kinds() []wallet.Kind {
	c.calls.Add(1)
	return c.Catalog.Kinds()
}

func TestListAvailableProviders_ComputedOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	cat := &countingCatalog{Catalog: f.catalog}
	b := broker.New(cat, f.store)

	want := []wallet.Kind{wallet.KindInjected, wallet.KindRelay, wallet.KindSession}
	assert.Equal(t, want, b.ListAvailableProviders())
	assert.Equal(t, want, b.ListAvailableProviders())
	assert.Equal(t, int32(1), cat.calls.Load())

	got := b.ListAvailableProviders()
	got[0] = "mutated"
	assert.Equal(t, want, b.ListAvailableProviders())
}

func TestConnectDisconnect_EveryKind(t *testing.T) {
	t.Parallel()

	for _, kind := range wallet.AllKinds() {
		t.Run(kind.String(), func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			b := f.broker()
			ctx := context.Background()

			s, err := b.Connect(ctx, kind)
			require.NoError(t, err)
			assert.Equal(t, kind, s.Kind)
			assert.NotEmpty(t, s.ID)
			assert.Same(t, s, b.Active())

			rec := f.cached(t)
			require.NotNil(t, rec)
			assert.Equal(t, kind, rec.Kind)
			assert.Equal(t, s.Handle.ResumeToken(), rec.Resume)

			require.NoError(t, b.Disconnect(ctx, s))
			assert.Nil(t, b.Active())
			assert.Nil(t, f.cached(t))

			if kind.HasSessionTeardown() {
				assert.Equal(t, []string{s.Handle.ResumeToken()}, f.wallet.ClosedSessions())
			} else {
				assert.Empty(t, f.wallet.ClosedSessions())
			}
		})
	}
}

func TestConnect_InProgress(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.wallet.SetConsent(wallettest.Hold)
	b := f.broker()

	type result struct {
		s   *broker.Session
		err error
	}
	first := make(chan result, 1)
	go func() {
		s, err := b.Connect(context.Background(), wallet.KindInjected)
		first <- result{s, err}
	}()

	select {
	case method := <-f.wallet.Prompts():
		assert.Equal(t, "eth_requestAccounts", method)
	case <-time.After(5 * time.Second):
		t.Fatal("wallet never prompted")
	}

	_, err := b.Connect(context.Background(), wallet.KindRelay)
	require.ErrorIs(t, err, tethererr.ErrConnectionInProgress)
	assert.Nil(t, b.ReconnectFromCache(context.Background()))

	f.wallet.Release(wallettest.Approve)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, wallet.KindInjected, res.s.Kind)
	assert.Same(t, res.s, b.Active())
}

func TestConnect_Failures(t *testing.T) {
	t.Parallel()

	t.Run("rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.wallet.SetConsent(wallettest.Reject)
		b := f.broker()

		_, err := b.Connect(context.Background(), wallet.KindInjected)
		require.ErrorIs(t, err, tethererr.ErrConnectionRejected)
		assert.Nil(t, b.Active())
		assert.Nil(t, f.cached(t))
	})

	t.Run("not offered", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		b := broker.New(catalog.New(wallet.Capabilities{}), f.store)

		_, err := b.Connect(context.Background(), wallet.KindInjected)
		require.ErrorIs(t, err, tethererr.ErrConnectionUnavailable)
	})

	t.Run("wallet down", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.wallet.SetDown(true)
		b := f.broker()

		_, err := b.Connect(context.Background(), wallet.KindRelay)
		require.ErrorIs(t, err, tethererr.ErrConnectionUnavailable)
		assert.Nil(t, b.Active())
	})
}

// cancelingConnector cancels the caller's context right after the wallet
// approves, so the broker sees cancellation before commit.
type cancelingConnector struct {
	wallet.Connector
	cancel context.CancelFunc
}

func (c *cancelingConnector) Connect(ctx context.Context, req wallet.ConnectRequest) (wallet.Handle, error) {
	h, err := c.Connector.Connect(ctx, req)
	c.cancel()
	return h, err
}

func TestConnect_CanceledBeforeCommit(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t)
	store := sessioncache.NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat := catalog.New(wallet.Capabilities{}, catalog.Entry{
		Kind:      wallet.KindRelay,
		Connector: &cancelingConnector{Connector: &wallet.RelayConnector{URL: w.URL()}, cancel: cancel},
	})
	b := broker.New(cat, store)

	_, err := b.Connect(ctx, wallet.KindRelay)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, b.Active())

	rec, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.Len(t, w.ClosedSessions(), 1)
	assert.Empty(t, w.ActiveSessions())
}

type failingStore struct {
	sessioncache.Store
	saveErr error
}

func (s *failingStore) Save(_ context.Context, _ sessioncache.Record) error {
	return s.saveErr
}

func TestConnect_CacheWriteFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	b := broker.New(f.catalog, &failingStore{Store: f.store, saveErr: errDiskFull})

	_, err := b.Connect(context.Background(), wallet.KindSession)
	require.ErrorIs(t, err, errDiskFull)
	assert.Nil(t, b.Active())
	assert.Len(t, f.wallet.ClosedSessions(), 1)
}

func TestConnect_ReplacesPreviousSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	b := f.broker()
	ctx := context.Background()

	relay, err := b.Connect(ctx, wallet.KindRelay)
	require.NoError(t, err)

	injected, err := b.Connect(ctx, wallet.KindInjected)
	require.NoError(t, err)

	assert.Same(t, injected, b.Active())
	assert.Equal(t, []string{relay.Handle.ResumeToken()}, f.wallet.ClosedSessions())

	rec := f.cached(t)
	require.NotNil(t, rec)
	assert.Equal(t, wallet.KindInjected, rec.Kind)
	assert.Empty(t, rec.Resume)
}

func TestReconnectFromCache(t *testing.T) {
	t.Parallel()

	t.Run("empty cache", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		assert.Nil(t, f.broker().ReconnectFromCache(context.Background()))
	})

	t.Run("resumes relay pairing without prompting", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()

		first, err := f.broker().Connect(ctx, wallet.KindRelay)
		require.NoError(t, err)
		first.Handle.Close()

		f.wallet.SetConsent(wallettest.Reject)
		b := f.broker()
		s := b.ReconnectFromCache(ctx)
		require.NotNil(t, s)
		assert.Equal(t, wallet.KindRelay, s.Kind)
		assert.Equal(t, first.Handle.ResumeToken(), s.Handle.ResumeToken())
		assert.Same(t, s, b.Active())
		assert.Equal(t, 1, f.wallet.Calls("wc_sessionPropose"))
	})

	t.Run("injected wallet still authorized", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, wallettest.WithAuthorized())
		require.NoError(t, f.store.Save(context.Background(), sessioncache.Record{Kind: wallet.KindInjected}))

		s := f.broker().ReconnectFromCache(context.Background())
		require.NotNil(t, s)
		assert.Zero(t, f.wallet.Calls("eth_requestAccounts"))
	})

	t.Run("failure degrades to nil", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		require.NoError(t, f.store.Save(context.Background(), sessioncache.Record{Kind: wallet.KindSession, Resume: "expired"}))

		b := f.broker()
		assert.Nil(t, b.ReconnectFromCache(context.Background()))
		assert.Nil(t, b.Active())
	})
}

func TestDisconnect_Idempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	b := f.broker()
	ctx := context.Background()

	require.NoError(t, b.Disconnect(ctx, nil))

	s, err := b.Connect(ctx, wallet.KindSession)
	require.NoError(t, err)

	require.NoError(t, b.Disconnect(ctx, s))
	require.NoError(t, b.Disconnect(ctx, s))
	assert.Len(t, f.wallet.ClosedSessions(), 1)
}

func TestDisconnect_ReplacedSessionIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	b := f.broker()
	ctx := context.Background()

	old, err := b.Connect(ctx, wallet.KindRelay)
	require.NoError(t, err)
	current, err := b.Connect(ctx, wallet.KindSession)
	require.NoError(t, err)

	require.NoError(t, b.Disconnect(ctx, old))
	assert.Same(t, current, b.Active())

	rec := f.cached(t)
	require.NotNil(t, rec, "the active session keeps its cache record")
	assert.Equal(t, wallet.KindSession, rec.Kind)

	// A restart still restores the live session.
	restored := f.broker().ReconnectFromCache(ctx)
	require.NotNil(t, restored)
	assert.Equal(t, wallet.KindSession, restored.Kind)
}

func TestDisconnect_NoActiveSessionClearsCache(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, sessioncache.Record{Kind: wallet.KindRelay, Resume: "stale"}))

	b := f.broker()
	require.NoError(t, b.Disconnect(ctx, nil))
	assert.Nil(t, f.cached(t))
	assert.Nil(t, b.Active())
}

type gatedStore struct {
	sessioncache.Store
	saving  chan struct{}
	release chan struct{}
}

func (s *gatedStore) Save(ctx context.Context, rec sessioncache.Record) error {
	if rec.Kind == wallet.KindSession {
		close(s.saving)
		<-s.release
	}
	return s.Store.Save(ctx, rec)
}

func TestDisconnect_DuringReplacementKeepsNewRecord(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	store := &gatedStore{Store: f.store, saving: make(chan struct{}), release: make(chan struct{})}
	b := broker.New(f.catalog, store)
	ctx := context.Background()

	old, err := b.Connect(ctx, wallet.KindRelay)
	require.NoError(t, err)

	connected := make(chan *broker.Session, 1)
	go func() {
		s, connErr := b.Connect(ctx, wallet.KindSession)
		assert.NoError(t, connErr)
		connected <- s
	}()
	<-store.saving

	disconnected := make(chan error, 1)
	go func() { disconnected <- b.Disconnect(ctx, old) }()
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	current := <-connected
	require.NoError(t, <-disconnected)
	assert.Same(t, current, b.Active())

	rec := f.cached(t)
	require.NotNil(t, rec)
	assert.Equal(t, wallet.KindSession, rec.Kind)
}

func TestWithOnChange(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	var seen []*broker.Session
	b := f.broker(broker.WithOnChange(func(s *broker.Session) { seen = append(seen, s) }))
	ctx := context.Background()

	first, err := b.Connect(ctx, wallet.KindRelay)
	require.NoError(t, err)
	second, err := b.Connect(ctx, wallet.KindInjected)
	require.NoError(t, err)
	require.NoError(t, b.Disconnect(ctx, first))
	require.NoError(t, b.Disconnect(ctx, second))

	s, err := b.Connect(ctx, wallet.KindSession)
	require.NoError(t, err)
	b.Release()
	b.Release()

	restored := f.broker(broker.WithOnChange(func(s *broker.Session) { seen = append(seen, s) })).ReconnectFromCache(ctx)
	require.NotNil(t, restored)

	require.Len(t, seen, 6)
	assert.Same(t, first, seen[0])
	assert.Same(t, second, seen[1])
	assert.Nil(t, seen[2])
	assert.Same(t, s, seen[3])
	assert.Nil(t, seen[4])
	assert.Same(t, restored, seen[5])
}
