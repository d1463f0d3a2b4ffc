package session

import (
	"context"

	"keygate/internal/drm"
	"keygate/internal/logging"
)

type requestKind int

const (
	requestProvision requestKind = iota
	requestKey
)

type dispatchRequest struct {
	generation uint64
	kind       requestKind
	request    drm.Request
}

// dispatcher serializes outbound network exchanges on one goroutine. Only
// one request is ever in flight; results are posted back to the session
// mailbox in completion order, which is dispatch order.
type dispatcher struct {
	manager  *Manager
	requests chan dispatchRequest
	cancel   context.CancelFunc
	stopped  chan struct{}
}

func newDispatcher(m *Manager) *dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &dispatcher{
		manager:  m,
		requests: make(chan dispatchRequest, 4),
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}
	go d.run(ctx)
	return d
}

// submit queues a request for execution. Called only from the session
// goroutine.
func (d *dispatcher) submit(req dispatchRequest) {
	select {
	case d.requests <- req:
	case <-d.stopped:
	}
}

// stop aborts the in-flight exchange, if any, and ends the worker. Late
// results are discarded by the session loop's generation check.
func (d *dispatcher) stop() {
	d.cancel()
}

func (d *dispatcher) run(ctx context.Context) {
	defer close(d.stopped)
	m := d.manager
	for {
		var req dispatchRequest
		select {
		case <-ctx.Done():
			return
		case req = <-d.requests:
		}

		switch req.kind {
		case requestProvision:
			response, err := m.client.ExecuteProvisionRequest(ctx, m.schemeID, req.request)
			if err != nil {
				m.logger.Debug("provisioning exchange failed", logging.Error(err))
			}
			m.post(provisionResultMsg{generation: req.generation, response: response, err: err})
		case requestKey:
			response, err := m.client.ExecuteKeyRequest(ctx, m.schemeID, req.request)
			if err != nil {
				m.logger.Debug("key exchange failed", logging.Error(err))
			}
			m.post(keyResultMsg{generation: req.generation, response: response, err: err})
		}
	}
}
