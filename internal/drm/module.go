package drm

import (
	"context"

	"github.com/google/uuid"
)

// KeyType selects the license variant requested from the server.
type KeyType int

const (
	KeyTypeStreaming KeyType = iota + 1
	KeyTypeOffline
	KeyTypeRelease
)

// Request is an opaque provisioning or key request produced by a secure
// module. DefaultURL, when set, names the server the module expects the
// request to be delivered to; clients may override it from configuration.
type Request struct {
	Data       []byte
	DefaultURL string
}

// EventType identifies spontaneous secure-module events.
type EventType int

const (
	// EventKeysNeeded asks the manager to issue a key request for an open
	// session.
	EventKeysNeeded EventType = iota + 1
	// EventKeysExpired reports that previously loaded keys are no longer
	// usable.
	EventKeysExpired
	// EventSessionExpired reports that the module session itself is dead.
	EventSessionExpired
)

func (t EventType) String() string {
	switch t {
	case EventKeysNeeded:
		return "keys-needed"
	case EventKeysExpired:
		return "keys-expired"
	case EventSessionExpired:
		return "session-expired"
	default:
		return "unknown"
	}
}

// Event is a spontaneous notification from a secure module about one of its
// sessions.
type Event struct {
	Type      EventType
	SessionID []byte
}

// CryptoHandle is the opaque token a decode pipeline uses to decrypt samples
// for an active session.
type CryptoHandle interface {
	// SessionID returns the module session the handle was derived from.
	SessionID() []byte
	// RequiresSecureDecoder reports whether decrypted output for mimeType
	// must stay inside a secure decode path.
	RequiresSecureDecoder(mimeType string) bool
}

// SecureModule wraps a platform content-protection primitive. Implementations
// bind to exactly one scheme; all methods may be called only from the session
// goroutine of the owning manager, except SetEventHandler's callback contract
// which is documented below.
type SecureModule interface {
	// OpenSession opens a module session and returns its opaque identifier.
	// Returns ErrNotProvisioned when the device needs provisioning first.
	OpenSession() ([]byte, error)
	// CloseSession releases a session previously returned by OpenSession.
	CloseSession(sessionID []byte)

	// ProvisionRequest builds the device provisioning request.
	ProvisionRequest() (Request, error)
	// ProvideProvisionResponse feeds the provisioning server response back
	// into the module.
	ProvideProvisionResponse(response []byte) error

	// KeyRequest builds a license request for the session. Returns
	// ErrNotProvisioned when provisioning was lost since OpenSession.
	KeyRequest(sessionID []byte, initData SchemeInitData, keyType KeyType, parameters map[string]string) (Request, error)
	// ProvideKeyResponse feeds the license server response into the module,
	// loading keys for the session.
	ProvideKeyResponse(sessionID []byte, response []byte) error

	// CryptoHandle derives the decrypt token for an open session.
	CryptoHandle(sessionID []byte) (CryptoHandle, error)

	// SetEventHandler registers the sink for spontaneous module events. The
	// callback may fire from any goroutine; handlers must not call back
	// into the module synchronously.
	SetEventHandler(handler func(Event))

	// PropertyString and friends pass vendor properties through.
	PropertyString(name string) (string, error)
	SetPropertyString(name, value string) error
	PropertyBytes(name string) ([]byte, error)
	SetPropertyBytes(name string, value []byte) error
}

// ServerClient executes provisioning and license exchanges against the remote
// rights server. Implementations are called from a dedicated dispatch
// goroutine, never concurrently.
type ServerClient interface {
	ExecuteProvisionRequest(ctx context.Context, schemeID uuid.UUID, request Request) ([]byte, error)
	ExecuteKeyRequest(ctx context.Context, schemeID uuid.UUID, request Request) ([]byte, error)
}
