package session

import (
	"keygate/internal/drm"
)

// message is anything deliverable to the session goroutine's mailbox.
type message interface{}

type openMsg struct {
	initData drm.InitData
}

type closeMsg struct{}

type releaseMsg struct{}

type moduleEventMsg struct {
	event drm.Event
}

type provisionResultMsg struct {
	generation uint64
	response   []byte
	err        error
}

type keyResultMsg struct {
	generation uint64
	response   []byte
	err        error
}

type snapshot struct {
	state     State
	openCount int
	lastErr   error
	handle    drm.CryptoHandle
}

type queryMsg struct {
	reply chan snapshot
}

// Open registers a logical opener. The first opener triggers init data
// selection and the module session open; later openers share the session.
// The call returns immediately; progress is observable via State and the
// event sink.
func (m *Manager) Open(initData drm.InitData) {
	m.post(openMsg{initData: initData})
}

// Close unregisters a logical opener. The last close tears the session down:
// pending network work is cancelled, the module session is closed, and every
// session-scoped field resets to its initial value.
func (m *Manager) Close() {
	m.post(closeMsg{})
}

// Release permanently stops the session goroutine, tearing down any open
// session first. The manager must not be used afterwards.
func (m *Manager) Release() {
	m.releaseOnce.Do(func() {
		m.post(releaseMsg{})
	})
	<-m.done
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	return m.query().state
}

// OpenCount reports the number of logical openers sharing the session.
func (m *Manager) OpenCount() int {
	return m.query().openCount
}

// Err returns the fault captured by the most recent failed step, but only
// while the manager sits in StateError.
func (m *Manager) Err() error {
	snap := m.query()
	if snap.state != StateError {
		return nil
	}
	return snap.lastErr
}

// CryptoHandle returns the decrypt token for the active session. Requesting
// it before key negotiation has begun is a programming error and yields
// drm.ErrInvalidState.
func (m *Manager) CryptoHandle() (drm.CryptoHandle, error) {
	snap := m.query()
	if snap.state != StateKeyRequesting && snap.state != StateReady {
		return nil, drm.Wrap(drm.ErrInvalidState, "session", "crypto handle", nil)
	}
	return snap.handle, nil
}

// RequiresSecureDecoder reports whether decoded output for mimeType must use
// a secure decoder component. Same state precondition as CryptoHandle.
func (m *Manager) RequiresSecureDecoder(mimeType string) (bool, error) {
	handle, err := m.CryptoHandle()
	if err != nil {
		return false, err
	}
	return handle.RequiresSecureDecoder(mimeType), nil
}

// PropertyString passes a vendor property read through to the secure module.
func (m *Manager) PropertyString(name string) (string, error) {
	return m.module.PropertyString(name)
}

// SetPropertyString passes a vendor property write through to the secure
// module.
func (m *Manager) SetPropertyString(name, value string) error {
	return m.module.SetPropertyString(name, value)
}

// PropertyBytes passes a vendor property read through to the secure module.
func (m *Manager) PropertyBytes(name string) ([]byte, error) {
	return m.module.PropertyBytes(name)
}

// SetPropertyBytes passes a vendor property write through to the secure
// module.
func (m *Manager) SetPropertyBytes(name string, value []byte) error {
	return m.module.SetPropertyBytes(name, value)
}

func (m *Manager) query() snapshot {
	reply := make(chan snapshot, 1)
	select {
	case m.mailbox <- queryMsg{reply: reply}:
	case <-m.done:
		return snapshot{state: StateUninitialized}
	}
	select {
	case snap := <-reply:
		return snap
	case <-m.done:
		return snapshot{state: StateUninitialized}
	}
}
