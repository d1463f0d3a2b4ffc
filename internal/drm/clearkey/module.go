// Package clearkey implements drm.SecureModule in pure software using the
// W3C ClearKey exchange: key requests list key IDs, key responses carry a
// JWK-style set of octet keys. It needs no device provisioning and no
// platform binding, which makes it the reference module for development
// deployments and tests.
package clearkey

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"keygate/internal/drm"
)

// Module is a software secure module bound to the ClearKey scheme.
type Module struct {
	mu         sync.Mutex
	sessions   map[string]*moduleSession
	handler    func(drm.Event)
	properties map[string]string
}

type moduleSession struct {
	id   []byte
	keys map[string][]byte
}

// New constructs a ClearKey module. Any other scheme is refused at
// construction time.
func New(schemeID uuid.UUID) (*Module, error) {
	if schemeID != drm.ClearKeyID {
		return nil, drm.Wrap(drm.ErrUnsupportedScheme, "clearkey", drm.SchemeName(schemeID), nil)
	}
	return &Module{
		sessions: make(map[string]*moduleSession),
		properties: map[string]string{
			"vendor":      "keygate",
			"version":     "1.0",
			"description": "software clearkey module",
		},
	}, nil
}

// OpenSession opens a software session. ClearKey devices are always
// provisioned, so this never reports drm.ErrNotProvisioned.
func (m *Module) OpenSession() ([]byte, error) {
	id := uuid.New()
	session := &moduleSession{id: id[:], keys: make(map[string][]byte)}
	m.mu.Lock()
	m.sessions[string(session.id)] = session
	m.mu.Unlock()
	return append([]byte(nil), session.id...), nil
}

// CloseSession discards a session and its keys.
func (m *Module) CloseSession(sessionID []byte) {
	m.mu.Lock()
	delete(m.sessions, string(sessionID))
	m.mu.Unlock()
}

// ProvisionRequest exists to satisfy the module surface; the session manager
// never calls it because OpenSession never reports a provisioning need.
func (m *Module) ProvisionRequest() (drm.Request, error) {
	return drm.Request{Data: []byte(`{"scheme":"clearkey"}`)}, nil
}

// ProvideProvisionResponse is a no-op for ClearKey.
func (m *Module) ProvideProvisionResponse([]byte) error {
	return nil
}

type keyRequestBody struct {
	KIDs []string `json:"kids"`
	Type string   `json:"type"`
}

type keyResponseBody struct {
	Keys []struct {
		KTY string `json:"kty"`
		KID string `json:"kid"`
		K   string `json:"k"`
	} `json:"keys"`
}

// KeyRequest builds a ClearKey license request naming the key ID carried in
// the init data.
func (m *Module) KeyRequest(sessionID []byte, initData drm.SchemeInitData, keyType drm.KeyType, parameters map[string]string) (drm.Request, error) {
	if _, err := m.session(sessionID); err != nil {
		return drm.Request{}, err
	}
	if len(initData.Data) == 0 {
		return drm.Request{}, drm.Wrap(nil, "clearkey", "key request: empty init data", nil)
	}
	body := keyRequestBody{
		KIDs: []string{base64.RawURLEncoding.EncodeToString(initData.Data)},
		Type: requestType(keyType),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return drm.Request{}, fmt.Errorf("clearkey: marshal key request: %w", err)
	}
	return drm.Request{Data: payload}, nil
}

// ProvideKeyResponse parses a JWK-style key set and loads it into the
// session.
func (m *Module) ProvideKeyResponse(sessionID []byte, response []byte) error {
	session, err := m.session(sessionID)
	if err != nil {
		return err
	}
	var body keyResponseBody
	if err := json.Unmarshal(response, &body); err != nil {
		return drm.Wrap(drm.ErrDenied, "clearkey", "malformed key response", err)
	}
	if len(body.Keys) == 0 {
		return drm.Wrap(drm.ErrDenied, "clearkey", "key response carries no keys", nil)
	}

	loaded := make(map[string][]byte, len(body.Keys))
	for _, key := range body.Keys {
		raw, err := base64.RawURLEncoding.DecodeString(key.K)
		if err != nil {
			return drm.Wrap(drm.ErrDenied, "clearkey", "malformed key material", err)
		}
		loaded[key.KID] = raw
	}

	m.mu.Lock()
	for kid, raw := range loaded {
		session.keys[kid] = raw
	}
	m.mu.Unlock()
	return nil
}

// CryptoHandle derives the decrypt token for an open session.
func (m *Module) CryptoHandle(sessionID []byte) (drm.CryptoHandle, error) {
	session, err := m.session(sessionID)
	if err != nil {
		return nil, err
	}
	return &handle{sessionID: append([]byte(nil), session.id...)}, nil
}

// SetEventHandler registers the spontaneous event sink.
func (m *Module) SetEventHandler(handler func(drm.Event)) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
}

// ExpireKeys fires a keys-expired event for the session, simulating a
// license window lapsing.
func (m *Module) ExpireKeys(sessionID []byte) {
	m.fire(drm.Event{Type: drm.EventKeysExpired, SessionID: sessionID})
}

// ExpireSession fires a session-expired event.
func (m *Module) ExpireSession(sessionID []byte) {
	m.fire(drm.Event{Type: drm.EventSessionExpired, SessionID: sessionID})
}

// RequestKeys fires a keys-needed event, asking the manager to renew.
func (m *Module) RequestKeys(sessionID []byte) {
	m.fire(drm.Event{Type: drm.EventKeysNeeded, SessionID: sessionID})
}

// KeyCount reports how many keys a session holds.
func (m *Module) KeyCount(sessionID []byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[string(sessionID)]
	if !ok {
		return 0
	}
	return len(session.keys)
}

// PropertyString reads a vendor property.
func (m *Module) PropertyString(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.properties[name]
	if !ok {
		return "", fmt.Errorf("clearkey: unknown property %q", name)
	}
	return value, nil
}

// SetPropertyString writes a vendor property.
func (m *Module) SetPropertyString(name, value string) error {
	m.mu.Lock()
	m.properties[name] = value
	m.mu.Unlock()
	return nil
}

// PropertyBytes reads a vendor property as bytes.
func (m *Module) PropertyBytes(name string) ([]byte, error) {
	value, err := m.PropertyString(name)
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// SetPropertyBytes writes a vendor property from bytes.
func (m *Module) SetPropertyBytes(name string, value []byte) error {
	return m.SetPropertyString(name, string(value))
}

func (m *Module) session(sessionID []byte) (*moduleSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[string(sessionID)]
	if !ok {
		return nil, drm.Wrap(drm.ErrSessionExpired, "clearkey", "unknown session", nil)
	}
	return session, nil
}

func (m *Module) fire(event drm.Event) {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}

func requestType(keyType drm.KeyType) string {
	switch keyType {
	case drm.KeyTypeOffline:
		return "persistent-license"
	case drm.KeyTypeRelease:
		return "persistent-release"
	default:
		return "temporary"
	}
}

type handle struct {
	sessionID []byte
}

func (h *handle) SessionID() []byte { return h.sessionID }

// RequiresSecureDecoder is always false: a software module cannot promise a
// protected media path.
func (h *handle) RequiresSecureDecoder(string) bool { return false }
