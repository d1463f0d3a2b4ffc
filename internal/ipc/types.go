package ipc

import "keygate/internal/api"

// SessionView mirrors the HTTP API session DTO for IPC callers.
type SessionView = api.SessionView

// ExchangeView mirrors the HTTP API ledger DTO for IPC callers.
type ExchangeView = api.ExchangeView

// StartRequest triggers daemon startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon status information.
type StatusResponse struct {
	Running      bool          `json:"running"`
	PID          int           `json:"pid"`
	LockPath     string        `json:"lock_path"`
	LedgerDBPath string        `json:"ledger_db_path"`
	APIAddr      string        `json:"api_addr"`
	Sessions     []SessionView `json:"sessions"`
	LedgerTotal  int           `json:"ledger_total"`
	LedgerFailed int           `json:"ledger_failed"`
}

// InitDataEntry carries one scheme's init data over the wire. Data is
// standard base64.
type InitDataEntry struct {
	Scheme   string `json:"scheme"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// SessionOpenRequest opens (or re-opens) a session for a content item.
type SessionOpenRequest struct {
	ContentID string          `json:"content_id"`
	Scheme    string          `json:"scheme"`
	InitData  []InitDataEntry `json:"init_data"`
}

// SessionOpenResponse returns the opened session.
type SessionOpenResponse struct {
	Session SessionView `json:"session"`
}

// SessionCloseRequest drops one reference from a session.
type SessionCloseRequest struct {
	ContentID string `json:"content_id"`
}

// SessionCloseResponse returns the session as observed after the close.
type SessionCloseResponse struct {
	Session  SessionView `json:"session"`
	Released bool        `json:"released"`
}

// SessionListRequest lists hosted sessions.
type SessionListRequest struct{}

// SessionListResponse contains hosted sessions.
type SessionListResponse struct {
	Sessions []SessionView `json:"sessions"`
}

// SessionDescribeRequest fetches a single session by content ID.
type SessionDescribeRequest struct {
	ContentID string `json:"content_id"`
}

// SessionDescribeResponse contains a single session.
type SessionDescribeResponse struct {
	Session SessionView `json:"session"`
}

// LedgerListRequest filters ledger listing by kind or content ID.
type LedgerListRequest struct {
	Kinds     []string `json:"kinds"`
	ContentID string   `json:"content_id"`
}

// LedgerListResponse contains ledger entries.
type LedgerListResponse struct {
	Exchanges []ExchangeView `json:"exchanges"`
}

// LedgerClearRequest removes all ledger entries.
type LedgerClearRequest struct{}

// LedgerClearResponse reports number of removed entries.
type LedgerClearResponse struct {
	Removed int64 `json:"removed"`
}

// LedgerHealthRequest fetches aggregate ledger diagnostics.
type LedgerHealthRequest struct{}

// LedgerHealthResponse reports ledger health information.
type LedgerHealthResponse struct {
	Total     int    `json:"total"`
	Exchanges int    `json:"exchanges"`
	Events    int    `json:"events"`
	Failures  int    `json:"failures"`
	LastError string `json:"last_error"`
}
