package daemon

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"keygate/internal/api"
	"keygate/internal/drm"
	"keygate/internal/drm/session"
	"keygate/internal/ledger"
	"keygate/internal/logging"
)

// ErrSessionNotFound reports an operation against a content ID with no hosted
// session.
var ErrSessionNotFound = errors.New("session not found")

type hostedSession struct {
	contentID string
	scheme    string
	manager   *session.Manager
	openedAt  time.Time
}

// OpenSession opens (or re-opens) the hosted session for contentID. The first
// open for a content ID constructs a manager bound to the scheme; later opens
// share it and bump its reference count. The scheme of an existing session
// cannot be changed by reopening.
func (d *Daemon) OpenSession(contentID, schemeName string, initData drm.InitData) (api.SessionView, error) {
	contentID = strings.TrimSpace(contentID)
	if contentID == "" {
		return api.SessionView{}, errors.New("content id is required")
	}
	if schemeName == "" {
		schemeName = d.cfg.Sessions.DefaultScheme
	}
	schemeID, err := drm.SchemeByName(schemeName)
	if err != nil {
		return api.SessionView{}, err
	}

	// The manager open happens under the registry lock: a concurrent last
	// close on the same content ID would otherwise release the manager
	// between the lookup and the open, swallowing the open.
	d.mu.Lock()
	hosted, ok := d.sessions[contentID]
	if ok && hosted.manager.SchemeID() != schemeID {
		d.mu.Unlock()
		return api.SessionView{}, fmt.Errorf("session %q is bound to scheme %s", contentID, hosted.scheme)
	}
	if !ok {
		hosted, err = d.newHostedSession(contentID, schemeID)
		if err != nil {
			d.mu.Unlock()
			return api.SessionView{}, err
		}
		d.sessions[contentID] = hosted
	}
	hosted.manager.Open(initData)
	view := api.FromSession(contentID, hosted.manager, hosted.openedAt)
	d.mu.Unlock()

	d.record(ledger.Record{
		ContentID: contentID,
		Scheme:    hosted.scheme,
		Kind:      ledger.KindSessionOpened,
	})
	d.logger.Info("session opened",
		logging.String(logging.FieldContent, contentID),
		logging.String(logging.FieldScheme, hosted.scheme),
		logging.Int("open_count", view.OpenCount))
	return view, nil
}

func (d *Daemon) newHostedSession(contentID string, schemeID uuid.UUID) (*hostedSession, error) {
	module, err := d.modules(schemeID)
	if err != nil {
		return nil, err
	}
	scheme := drm.SchemeName(schemeID)
	client := &recordingClient{
		inner:     d.client,
		daemon:    d,
		contentID: contentID,
		scheme:    scheme,
	}
	sink := &ledgerSink{daemon: d, contentID: contentID, scheme: scheme}
	mgr, err := session.New(schemeID, module, client,
		session.WithEventSink(sink),
		session.WithLogger(d.logger),
		session.WithParameters(d.cfg.Sessions.KeyRequestParameters),
	)
	if err != nil {
		return nil, err
	}
	return &hostedSession{
		contentID: contentID,
		scheme:    scheme,
		manager:   mgr,
		openedAt:  time.Now().UTC(),
	}, nil
}

// CloseSession drops one reference from the hosted session. When the last
// reference closes, the manager is released and the session leaves the
// registry.
func (d *Daemon) CloseSession(contentID string) (api.SessionView, error) {
	// Close, the count check, and the registry removal form one critical
	// section so an open arriving concurrently either lands before the
	// count reaches zero or constructs a fresh session afterwards.
	d.mu.Lock()
	hosted, ok := d.sessions[contentID]
	if !ok {
		d.mu.Unlock()
		return api.SessionView{}, fmt.Errorf("%w: %q", ErrSessionNotFound, contentID)
	}
	hosted.manager.Close()
	view := api.FromSession(contentID, hosted.manager, hosted.openedAt)
	released := view.OpenCount == 0
	if released {
		delete(d.sessions, contentID)
	}
	d.mu.Unlock()

	d.record(ledger.Record{
		ContentID: contentID,
		Scheme:    hosted.scheme,
		Kind:      ledger.KindSessionClosed,
	})
	if released {
		hosted.manager.Release()
		d.record(ledger.Record{
			ContentID: contentID,
			Scheme:    hosted.scheme,
			Kind:      ledger.KindSessionReleased,
		})
		d.logger.Info("session released", logging.String(logging.FieldContent, contentID))
	}
	return view, nil
}

// DescribeSession returns the view of one hosted session.
func (d *Daemon) DescribeSession(contentID string) (api.SessionView, error) {
	d.mu.Lock()
	hosted, ok := d.sessions[contentID]
	d.mu.Unlock()
	if !ok {
		return api.SessionView{}, fmt.Errorf("%w: %q", ErrSessionNotFound, contentID)
	}
	return api.FromSession(contentID, hosted.manager, hosted.openedAt), nil
}

// ListSessions returns views of all hosted sessions sorted by content ID.
func (d *Daemon) ListSessions() []api.SessionView {
	d.mu.Lock()
	hosted := make([]*hostedSession, 0, len(d.sessions))
	for _, h := range d.sessions {
		hosted = append(hosted, h)
	}
	d.mu.Unlock()

	views := make([]api.SessionView, 0, len(hosted))
	for _, h := range hosted {
		views = append(views, api.FromSession(h.contentID, h.manager, h.openedAt))
	}
	slices.SortFunc(views, func(a, b api.SessionView) int {
		return strings.Compare(a.ContentID, b.ContentID)
	})
	return views
}

// releaseAll tears down every hosted session during shutdown.
func (d *Daemon) releaseAll() {
	d.mu.Lock()
	hosted := make([]*hostedSession, 0, len(d.sessions))
	for _, h := range d.sessions {
		hosted = append(hosted, h)
	}
	d.sessions = make(map[string]*hostedSession)
	d.mu.Unlock()

	for _, h := range hosted {
		h.manager.Release()
		d.record(ledger.Record{
			ContentID: h.contentID,
			Scheme:    h.scheme,
			Kind:      ledger.KindSessionReleased,
			Detail:    "daemon shutdown",
		})
	}
}

// ledgerSink records manager lifecycle notifications. Callbacks arrive on the
// session goroutine, so writes go through the daemon's bounded-time recorder.
type ledgerSink struct {
	daemon    *Daemon
	contentID string
	scheme    string
}

func (s *ledgerSink) OnKeysLoaded() {
	s.daemon.record(ledger.Record{
		ContentID: s.contentID,
		Scheme:    s.scheme,
		Kind:      ledger.KindKeysLoaded,
	})
}

func (s *ledgerSink) OnSessionManagerError(err error) {
	kind := ledger.KindSessionError
	switch {
	case errors.Is(err, drm.ErrKeysExpired):
		kind = ledger.KindKeysExpired
	case errors.Is(err, drm.ErrSessionExpired):
		kind = ledger.KindSessionExpired
	}
	s.daemon.record(ledger.Record{
		ContentID:    s.contentID,
		Scheme:       s.scheme,
		Kind:         kind,
		ErrorMessage: err.Error(),
	})
}

// recordingClient wraps the license server client so that every exchange for
// a hosted session lands in the ledger with its outcome and latency.
type recordingClient struct {
	inner     drm.ServerClient
	daemon    *Daemon
	contentID string
	scheme    string
}

func (c *recordingClient) ExecuteProvisionRequest(ctx context.Context, schemeID uuid.UUID, request drm.Request) ([]byte, error) {
	started := time.Now()
	response, err := c.inner.ExecuteProvisionRequest(ctx, schemeID, request)
	c.recordExchange(ledger.KindProvisioning, len(request.Data), len(response), started, err)
	return response, err
}

func (c *recordingClient) ExecuteKeyRequest(ctx context.Context, schemeID uuid.UUID, request drm.Request) ([]byte, error) {
	started := time.Now()
	response, err := c.inner.ExecuteKeyRequest(ctx, schemeID, request)
	c.recordExchange(ledger.KindKeyExchange, len(request.Data), len(response), started, err)
	return response, err
}

func (c *recordingClient) recordExchange(kind ledger.Kind, requestBytes, responseBytes int, started time.Time, err error) {
	record := ledger.Record{
		ContentID: c.contentID,
		Scheme:    c.scheme,
		Kind:      kind,
		Detail: fmt.Sprintf("request=%dB response=%dB elapsed=%s",
			requestBytes, responseBytes, time.Since(started).Round(time.Millisecond)),
	}
	if err != nil {
		record.ErrorMessage = err.Error()
	}
	c.daemon.record(record)
}
