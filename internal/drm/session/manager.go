package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"keygate/internal/drm"
	"keygate/internal/logging"
)

// State describes where a session sits in its negotiation lifecycle.
type State int

const (
	// StateError is the absorbing failure state.
	StateError State = iota
	// StateUninitialized is the resting state: no module session held.
	StateUninitialized
	// StateOpening means a module session open is in progress, possibly
	// waiting on device provisioning.
	StateOpening
	// StateKeyRequesting means a module session is held and a license
	// exchange is outstanding. The crypto handle is already usable.
	StateKeyRequesting
	// StateReady means keys are loaded and the session can decrypt.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateError:
		return "error"
	case StateUninitialized:
		return "uninitialized"
	case StateOpening:
		return "opening"
	case StateKeyRequesting:
		return "key-requesting"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// EventSink receives session lifecycle notifications. Callbacks fire on the
// session goroutine, never inline with the caller that triggered them, and
// must not call back into the Manager synchronously.
type EventSink interface {
	OnKeysLoaded()
	OnSessionManagerError(err error)
}

// Manager owns one DRM session for one protection scheme. Construction binds
// the scheme permanently; Open/Close reference-count concurrent logical
// openers of the shared underlying module session.
type Manager struct {
	schemeID uuid.UUID
	module   drm.SecureModule
	client   drm.ServerClient
	keyType  drm.KeyType
	params   map[string]string
	sink     EventSink
	logger   *slog.Logger

	mailbox chan message
	done    chan struct{}

	releaseOnce sync.Once

	// Everything below is owned by the session goroutine.
	state            State
	openCount        int
	generation       uint64
	initData         *drm.SchemeInitData
	sessionID        []byte
	handle           drm.CryptoHandle
	lastErr          error
	provisioning     bool
	provisionRetried bool
	dispatcher       *dispatcher
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithEventSink registers the lifecycle notification sink.
func WithEventSink(sink EventSink) Option {
	return func(m *Manager) { m.sink = sink }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithKeyType overrides the default streaming key type.
func WithKeyType(keyType drm.KeyType) Option {
	return func(m *Manager) { m.keyType = keyType }
}

// WithParameters sets optional key-request parameters passed through to the
// secure module on every license request.
func WithParameters(params map[string]string) Option {
	return func(m *Manager) {
		if len(params) == 0 {
			return
		}
		m.params = make(map[string]string, len(params))
		for k, v := range params {
			m.params[k] = v
		}
	}
}

// New constructs a manager bound to schemeID and starts its session
// goroutine. The manager must be disposed of with Release.
func New(schemeID uuid.UUID, module drm.SecureModule, client drm.ServerClient, opts ...Option) (*Manager, error) {
	if schemeID == uuid.Nil {
		return nil, errors.New("session: scheme identifier is required")
	}
	if module == nil {
		return nil, errors.New("session: secure module is required")
	}
	if client == nil {
		return nil, errors.New("session: server client is required")
	}

	m := &Manager{
		schemeID: schemeID,
		module:   module,
		client:   client,
		keyType:  drm.KeyTypeStreaming,
		mailbox:  make(chan message, 32),
		done:     make(chan struct{}),
		state:    StateUninitialized,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "drm-session").
		With(logging.String(logging.FieldScheme, drm.SchemeName(schemeID)))

	module.SetEventHandler(func(event drm.Event) {
		m.post(moduleEventMsg{event: event})
	})

	go m.run()
	return m, nil
}

// NewWidevine constructs a Widevine manager.
func NewWidevine(module drm.SecureModule, client drm.ServerClient, opts ...Option) (*Manager, error) {
	return New(drm.WidevineID, module, client, opts...)
}

// NewPlayReady constructs a PlayReady manager, forwarding vendor custom data
// when present.
func NewPlayReady(module drm.SecureModule, client drm.ServerClient, customData string, opts ...Option) (*Manager, error) {
	if customData != "" {
		opts = append(opts, WithParameters(map[string]string{drm.PlayReadyCustomDataKey: customData}))
	}
	return New(drm.PlayReadyID, module, client, opts...)
}

// SchemeID returns the bound protection scheme.
func (m *Manager) SchemeID() uuid.UUID {
	return m.schemeID
}

// post delivers a message to the session goroutine, dropping it if the
// manager has been released.
func (m *Manager) post(msg message) {
	select {
	case m.mailbox <- msg:
	case <-m.done:
	}
}
