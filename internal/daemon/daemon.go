package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"keygate/internal/api"
	"keygate/internal/config"
	"keygate/internal/drm"
	"keygate/internal/drm/clearkey"
	"keygate/internal/ledger"
	"keygate/internal/logging"
)

// ModuleFactory produces a secure module for one protection scheme. The
// daemon calls it once per hosted session.
type ModuleFactory func(schemeID uuid.UUID) (drm.SecureModule, error)

// defaultModuleFactory serves the schemes keygate can run without platform
// DRM hardware.
func defaultModuleFactory(schemeID uuid.UUID) (drm.SecureModule, error) {
	if schemeID == drm.ClearKeyID {
		return clearkey.New(schemeID)
	}
	return nil, fmt.Errorf("%w: no secure module available for scheme %s", drm.ErrUnsupportedScheme, drm.SchemeName(schemeID))
}

// Daemon coordinates hosted sessions and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *ledger.Store
	client  drm.ServerClient
	modules ModuleFactory

	lockPath string
	lock     *flock.Flock

	mu       sync.Mutex
	sessions map[string]*hostedSession

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	api *apiServer
}

// Option configures optional daemon behavior.
type Option func(*Daemon)

// WithModuleFactory overrides how secure modules are constructed per scheme.
func WithModuleFactory(factory ModuleFactory) Option {
	return func(d *Daemon) {
		if factory != nil {
			d.modules = factory
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *ledger.Store, client drm.ServerClient, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || client == nil {
		return nil, errors.New("daemon requires config, ledger store, and server client")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "keygated.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		client:   client,
		modules:  defaultModuleFactory,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		sessions: make(map[string]*hostedSession),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock and brings up the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another keygate daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	server, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}
	d.api = server
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("keygate daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop releases all hosted sessions, shuts down the API, and releases the
// daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.api = nil
	d.releaseAll()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("keygate daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddr returns the bound HTTP API address, or empty when the API is not
// serving.
func (d *Daemon) APIAddr() string {
	if d.api == nil || d.api.listener == nil {
		return ""
	}
	return d.api.listener.Addr().String()
}

// Exchanges returns ledger entries filtered by optional kinds.
func (d *Daemon) Exchanges(ctx context.Context, kinds []ledger.Kind) ([]*ledger.Record, error) {
	if d.store == nil {
		return nil, errors.New("ledger store unavailable")
	}
	if len(kinds) == 0 {
		return d.store.List(ctx)
	}
	return d.store.List(ctx, kinds...)
}

// ExchangesByContent returns all ledger entries for one content item.
func (d *Daemon) ExchangesByContent(ctx context.Context, contentID string) ([]*ledger.Record, error) {
	if d.store == nil {
		return nil, errors.New("ledger store unavailable")
	}
	return d.store.ListByContent(ctx, contentID)
}

// ClearLedger removes all ledger entries.
func (d *Daemon) ClearLedger(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("ledger store unavailable")
	}
	return d.store.Clear(ctx)
}

// LedgerHealth returns aggregate ledger diagnostics.
func (d *Daemon) LedgerHealth(ctx context.Context) (ledger.HealthSummary, error) {
	if d.store == nil {
		return ledger.HealthSummary{}, errors.New("ledger store unavailable")
	}
	return d.store.Health(ctx)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LedgerDBPath: d.store.Path(),
		LockFilePath: d.lockPath,
		Sessions:     d.ListSessions(),
	}
	if health, err := d.store.Health(ctx); err == nil {
		status.Ledger = api.FromLedgerHealth(health)
	}
	return status
}

func (d *Daemon) record(record ledger.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := d.store.Append(ctx, record); err != nil {
		d.logger.Warn("ledger append failed",
			logging.String(logging.FieldContent, record.ContentID),
			logging.String(logging.FieldExchange, string(record.Kind)),
			logging.Error(err))
	}
}
