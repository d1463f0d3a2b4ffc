package clearkey_test

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"keygate/internal/drm"
	"keygate/internal/drm/clearkey"
)

func TestNewRefusesForeignSchemes(t *testing.T) {
	if _, err := clearkey.New(drm.WidevineID); !errors.Is(err, drm.ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
	if _, err := clearkey.New(drm.ClearKeyID); err != nil {
		t.Fatalf("unexpected error for clearkey: %v", err)
	}
}

func TestKeyExchangeRoundTrip(t *testing.T) {
	module, err := clearkey.New(drm.ClearKeyID)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	sessionID, err := module.OpenSession()
	if err != nil {
		t.Fatalf("OpenSession returned error: %v", err)
	}

	kid := []byte("0123456789abcdef")
	request, err := module.KeyRequest(sessionID, drm.SchemeInitData{MimeType: "video/mp4", Data: kid}, drm.KeyTypeStreaming, nil)
	if err != nil {
		t.Fatalf("KeyRequest returned error: %v", err)
	}

	var body struct {
		KIDs []string `json:"kids"`
		Type string   `json:"type"`
	}
	if err := json.Unmarshal(request.Data, &body); err != nil {
		t.Fatalf("unmarshal key request: %v", err)
	}
	if len(body.KIDs) != 1 || body.KIDs[0] != base64.RawURLEncoding.EncodeToString(kid) {
		t.Fatalf("unexpected kids: %v", body.KIDs)
	}
	if body.Type != "temporary" {
		t.Fatalf("unexpected request type: %q", body.Type)
	}

	response := `{"keys":[{"kty":"oct","kid":"` + body.KIDs[0] + `","k":"` +
		base64.RawURLEncoding.EncodeToString([]byte("fedcba9876543210")) + `"}]}`
	if err := module.ProvideKeyResponse(sessionID, []byte(response)); err != nil {
		t.Fatalf("ProvideKeyResponse returned error: %v", err)
	}
	if got := module.KeyCount(sessionID); got != 1 {
		t.Fatalf("expected 1 loaded key, got %d", got)
	}

	handle, err := module.CryptoHandle(sessionID)
	if err != nil {
		t.Fatalf("CryptoHandle returned error: %v", err)
	}
	if handle.RequiresSecureDecoder("video/mp4") {
		t.Fatal("software module must not require a secure decoder")
	}
}

func TestProvideKeyResponseRejectsEmptyKeySet(t *testing.T) {
	module, _ := clearkey.New(drm.ClearKeyID)
	sessionID, _ := module.OpenSession()

	if err := module.ProvideKeyResponse(sessionID, []byte(`{"keys":[]}`)); !errors.Is(err, drm.ErrDenied) {
		t.Fatalf("expected ErrDenied for empty key set, got %v", err)
	}
	if err := module.ProvideKeyResponse(sessionID, []byte(`not-json`)); !errors.Is(err, drm.ErrDenied) {
		t.Fatalf("expected ErrDenied for malformed response, got %v", err)
	}
}

func TestClosedSessionIsUnknown(t *testing.T) {
	module, _ := clearkey.New(drm.ClearKeyID)
	sessionID, _ := module.OpenSession()
	module.CloseSession(sessionID)

	if _, err := module.CryptoHandle(sessionID); !errors.Is(err, drm.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired for closed session, got %v", err)
	}
}

func TestEventsReachRegisteredHandler(t *testing.T) {
	module, _ := clearkey.New(drm.ClearKeyID)
	sessionID, _ := module.OpenSession()

	var got []drm.Event
	module.SetEventHandler(func(event drm.Event) { got = append(got, event) })

	module.RequestKeys(sessionID)
	module.ExpireKeys(sessionID)
	module.ExpireSession(sessionID)

	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Type != drm.EventKeysNeeded || got[1].Type != drm.EventKeysExpired || got[2].Type != drm.EventSessionExpired {
		t.Fatalf("unexpected event order: %v", got)
	}
}

func TestPropertyPassthrough(t *testing.T) {
	module, _ := clearkey.New(drm.ClearKeyID)

	if _, err := module.PropertyString("missing"); err == nil {
		t.Fatal("expected error for unknown property")
	}
	if err := module.SetPropertyString("securityLevel", "L3"); err != nil {
		t.Fatalf("SetPropertyString returned error: %v", err)
	}
	value, err := module.PropertyString("securityLevel")
	if err != nil || value != "L3" {
		t.Fatalf("unexpected property value %q err=%v", value, err)
	}
}
