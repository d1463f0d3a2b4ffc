package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"keygate/internal/drm"
	"keygate/internal/drm/session"
)

// stubModule is a scripted secure module. Fields prefixed "fail" consume one
// scripted failure per call.
type stubModule struct {
	mu sync.Mutex

	provisioned    bool
	failOpens      int
	keyRequestErrs []error
	provideKeyErr  error
	requiresSecure bool

	openCalls       int
	closeCalls      int
	keyRequestCalls int
	provideKeyCalls int
	closedSessions  [][]byte

	handler func(drm.Event)
	nextID  byte
}

func newStubModule() *stubModule {
	return &stubModule{provisioned: true}
}

func (s *stubModule) OpenSession() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openCalls++
	if s.failOpens > 0 {
		s.failOpens--
		return nil, drm.Wrap(drm.ErrNotProvisioned, "stub", "open session", nil)
	}
	if !s.provisioned {
		return nil, drm.Wrap(drm.ErrNotProvisioned, "stub", "open session", nil)
	}
	s.nextID++
	return []byte{s.nextID}, nil
}

func (s *stubModule) CloseSession(sessionID []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	s.closedSessions = append(s.closedSessions, append([]byte(nil), sessionID...))
}

func (s *stubModule) ProvisionRequest() (drm.Request, error) {
	return drm.Request{Data: []byte("provision-request")}, nil
}

func (s *stubModule) ProvideProvisionResponse(response []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provisioned = true
	return nil
}

func (s *stubModule) KeyRequest(sessionID []byte, initData drm.SchemeInitData, keyType drm.KeyType, params map[string]string) (drm.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyRequestCalls++
	if len(s.keyRequestErrs) > 0 {
		err := s.keyRequestErrs[0]
		s.keyRequestErrs = s.keyRequestErrs[1:]
		if err != nil {
			return drm.Request{}, err
		}
	}
	return drm.Request{Data: append([]byte("key-request:"), initData.Data...)}, nil
}

func (s *stubModule) ProvideKeyResponse(sessionID []byte, response []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provideKeyCalls++
	return s.provideKeyErr
}

func (s *stubModule) CryptoHandle(sessionID []byte) (drm.CryptoHandle, error) {
	return &stubHandle{sessionID: append([]byte(nil), sessionID...), secure: s.requiresSecure}, nil
}

func (s *stubModule) SetEventHandler(handler func(drm.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

func (s *stubModule) fireEvent(event drm.Event) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}

func (s *stubModule) PropertyString(name string) (string, error) { return "stub:" + name, nil }

func (s *stubModule) SetPropertyString(name, value string) error { return nil }

func (s *stubModule) PropertyBytes(name string) ([]byte, error) { return []byte(name), nil }

func (s *stubModule) SetPropertyBytes(name string, value []byte) error { return nil }

func (s *stubModule) counts() (opens, closes, keyRequests, keyResponses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openCalls, s.closeCalls, s.keyRequestCalls, s.provideKeyCalls
}

type stubHandle struct {
	sessionID []byte
	secure    bool
}

func (h *stubHandle) SessionID() []byte { return h.sessionID }

func (h *stubHandle) RequiresSecureDecoder(string) bool { return h.secure }

// stubServer is a scripted license/provisioning server client.
type stubServer struct {
	mu sync.Mutex

	provisionErr error
	keyErr       error
	keyDelay     time.Duration

	provisionCalls int
	keyCalls       int
}

func (s *stubServer) ExecuteProvisionRequest(ctx context.Context, schemeID uuid.UUID, request drm.Request) ([]byte, error) {
	s.mu.Lock()
	s.provisionCalls++
	err := s.provisionErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []byte("provision-response"), nil
}

func (s *stubServer) ExecuteKeyRequest(ctx context.Context, schemeID uuid.UUID, request drm.Request) ([]byte, error) {
	s.mu.Lock()
	s.keyCalls++
	err := s.keyErr
	delay := s.keyDelay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte("key-response"), nil
}

func (s *stubServer) counts() (provisions, keys int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provisionCalls, s.keyCalls
}

// recordingSink counts sink notifications.
type recordingSink struct {
	mu         sync.Mutex
	keysLoaded int
	errs       []error
}

func (r *recordingSink) OnKeysLoaded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keysLoaded++
}

func (r *recordingSink) OnSessionManagerError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingSink) snapshot() (int, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keysLoaded, append([]error(nil), r.errs...)
}

func widevineInitData() drm.InitData {
	return drm.InitData{
		drm.WidevineID: {MimeType: "video/mp4", Data: []byte{0xde, 0xad}},
	}
}

func waitForState(t *testing.T, m *session.Manager, want session.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, at %s", want, m.State())
}

// settle gives in-flight mailbox traffic a moment to drain before asserting
// that nothing changed.
func settle() {
	time.Sleep(50 * time.Millisecond)
}
