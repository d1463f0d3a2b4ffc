package session

import (
	"keygate/internal/drm"
	"keygate/internal/logging"
)

func (m *Manager) run() {
	defer close(m.done)
	for msg := range m.mailbox {
		switch msg := msg.(type) {
		case openMsg:
			m.handleOpen(msg.initData)
		case closeMsg:
			m.handleClose()
		case queryMsg:
			msg.reply <- snapshot{
				state:     m.state,
				openCount: m.openCount,
				lastErr:   m.lastErr,
				handle:    m.handle,
			}
		case provisionResultMsg:
			m.handleProvisionResult(msg)
		case keyResultMsg:
			m.handleKeyResult(msg)
		case moduleEventMsg:
			m.handleModuleEvent(msg.event)
		case releaseMsg:
			m.teardown()
			return
		}
	}
}

func (m *Manager) handleOpen(initData drm.InitData) {
	m.openCount++
	if m.openCount != 1 {
		return
	}

	if m.dispatcher == nil {
		m.dispatcher = newDispatcher(m)
	}
	if m.initData == nil {
		data, ok := initData.Get(m.schemeID)
		if !ok {
			m.onError(drm.Wrap(drm.ErrMissingSchemeData, "session", "open", nil))
			return
		}
		m.initData = &data
	}

	m.provisionRetried = false
	m.setState(StateOpening)
	m.openSession()
}

func (m *Manager) handleClose() {
	if m.openCount == 0 {
		m.logger.Warn("close without matching open")
		return
	}
	m.openCount--
	if m.openCount > 0 {
		return
	}
	m.reset()
}

// reset tears the session-scoped state down to its post-construction shape:
// a fully closed manager is indistinguishable from a fresh one apart from
// its scheme binding.
func (m *Manager) reset() {
	m.generation++
	m.provisioning = false
	m.provisionRetried = false
	if m.dispatcher != nil {
		m.dispatcher.stop()
		m.dispatcher = nil
	}
	m.initData = nil
	m.handle = nil
	m.lastErr = nil
	if m.sessionID != nil {
		m.module.CloseSession(m.sessionID)
		m.sessionID = nil
	}
	m.setState(StateUninitialized)
}

func (m *Manager) teardown() {
	if m.openCount > 0 || m.sessionID != nil {
		m.openCount = 0
		m.reset()
	} else if m.dispatcher != nil {
		m.dispatcher.stop()
		m.dispatcher = nil
	}
}

// openSession attempts to open a module session. A not-provisioned report
// diverts into the provisioning sub-protocol unless a provisioning round
// trip already happened for this negotiation, in which case it is fatal.
func (m *Manager) openSession() {
	sessionID, err := m.module.OpenSession()
	if err != nil {
		if drm.IsTransient(err) {
			if !m.provisionRetried {
				m.postProvisionRequest()
			} else {
				m.onError(err)
			}
			return
		}
		m.onError(err)
		return
	}

	handle, err := m.module.CryptoHandle(sessionID)
	if err != nil {
		m.module.CloseSession(sessionID)
		m.onError(err)
		return
	}

	m.sessionID = sessionID
	m.handle = handle
	m.setState(StateKeyRequesting)
	m.postKeyRequest()
}

func (m *Manager) postProvisionRequest() {
	if m.provisioning {
		return
	}
	request, err := m.module.ProvisionRequest()
	if err != nil {
		m.onError(err)
		return
	}
	m.provisioning = true
	m.logger.Debug("provisioning request dispatched")
	m.dispatcher.submit(dispatchRequest{
		generation: m.generation,
		kind:       requestProvision,
		request:    request,
	})
}

func (m *Manager) handleProvisionResult(msg provisionResultMsg) {
	if msg.generation != m.generation {
		return
	}
	m.provisioning = false
	if m.state != StateOpening && m.state != StateKeyRequesting && m.state != StateReady {
		return
	}
	if msg.err != nil {
		m.onError(msg.err)
		return
	}
	if err := m.module.ProvideProvisionResponse(msg.response); err != nil {
		m.onError(err)
		return
	}
	m.provisionRetried = true
	if m.state == StateOpening {
		m.openSession()
	} else {
		m.postKeyRequest()
	}
}

func (m *Manager) postKeyRequest() {
	request, err := m.module.KeyRequest(m.sessionID, *m.initData, m.keyType, m.params)
	if err != nil {
		m.onKeysError(err)
		return
	}
	m.logger.Debug("key request dispatched")
	m.dispatcher.submit(dispatchRequest{
		generation: m.generation,
		kind:       requestKey,
		request:    request,
	})
}

func (m *Manager) handleKeyResult(msg keyResultMsg) {
	if msg.generation != m.generation {
		return
	}
	if m.state != StateKeyRequesting && m.state != StateReady {
		return
	}
	if msg.err != nil {
		m.onKeysError(msg.err)
		return
	}
	if err := m.module.ProvideKeyResponse(m.sessionID, msg.response); err != nil {
		m.onKeysError(err)
		return
	}
	m.provisionRetried = false
	m.lastErr = nil
	m.setState(StateReady)
	m.logger.Info("license keys loaded")
	if m.sink != nil {
		m.sink.OnKeysLoaded()
	}
}

// onKeysError absorbs a not-provisioned key failure into exactly one
// provisioning round trip; a repeat within the same negotiation, or any
// other failure, is fatal.
func (m *Manager) onKeysError(err error) {
	if drm.IsTransient(err) && !m.provisionRetried {
		m.postProvisionRequest()
		return
	}
	m.onError(err)
}

func (m *Manager) handleModuleEvent(event drm.Event) {
	if m.openCount == 0 {
		return
	}
	if m.state != StateKeyRequesting && m.state != StateReady {
		return
	}
	m.logger.Debug("module event", logging.String(logging.FieldEventType, event.Type.String()))
	switch event.Type {
	case drm.EventKeysNeeded:
		m.postKeyRequest()
	case drm.EventKeysExpired:
		// Keys lapsing does not destroy the session: negotiation restarts
		// while an already decrypting pipeline keeps its handle.
		fault := drm.Wrap(drm.ErrKeysExpired, "session", "module event", nil)
		m.setState(StateKeyRequesting)
		m.lastErr = fault
		m.notifyError(fault)
	case drm.EventSessionExpired:
		m.onError(drm.Wrap(drm.ErrSessionExpired, "session", "module event", nil))
	}
}

// onError captures a fatal fault. A session that is already Ready stays
// Ready so a decrypting pipeline is not interrupted by a late fault; the
// sink still hears about it.
func (m *Manager) onError(err error) {
	m.lastErr = err
	m.logger.Error("session fault", logging.Error(err), logging.String(logging.FieldState, m.state.String()))
	m.notifyError(err)
	if m.state != StateReady {
		m.setState(StateError)
	}
}

func (m *Manager) notifyError(err error) {
	if m.sink != nil {
		m.sink.OnSessionManagerError(err)
	}
}

func (m *Manager) setState(state State) {
	if m.state == state {
		return
	}
	m.logger.Debug("state transition",
		logging.String("from", m.state.String()),
		logging.String("to", state.String()),
	)
	m.state = state
}
