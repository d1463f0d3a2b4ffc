package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SessionView describes a hosted DRM session in a transport-friendly format.
type SessionView struct {
	ContentID     string `json:"contentId"`
	Scheme        string `json:"scheme"`
	State         string `json:"state"`
	StateLabel    string `json:"stateLabel"`
	OpenCount     int    `json:"openCount"`
	SecureDecoder bool   `json:"secureDecoder"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	OpenedAt      string `json:"openedAt,omitempty"`
}

// ExchangeView describes a ledger entry for API consumers.
type ExchangeView struct {
	ID           int64  `json:"id"`
	ContentID    string `json:"contentId"`
	Scheme       string `json:"scheme"`
	Kind         string `json:"kind"`
	KindLabel    string `json:"kindLabel"`
	Detail       string `json:"detail,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

// LedgerHealth summarizes ledger contents.
type LedgerHealth struct {
	Total       int           `json:"total"`
	Exchanges   int           `json:"exchanges"`
	Events      int           `json:"events"`
	Failures    int           `json:"failures"`
	LastFailure *ExchangeView `json:"lastFailure,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool          `json:"running"`
	PID          int           `json:"pid"`
	LedgerDBPath string        `json:"ledgerDbPath"`
	LockFilePath string        `json:"lockFilePath"`
	Sessions     []SessionView `json:"sessions"`
	Ledger       LedgerHealth  `json:"ledger"`
}

// SessionListResponse wraps a collection of sessions for API responses.
type SessionListResponse struct {
	Sessions []SessionView `json:"sessions"`
}

// SessionResponse wraps a single session.
type SessionResponse struct {
	Session SessionView `json:"session"`
}

// ExchangeListResponse wraps a collection of ledger entries.
type ExchangeListResponse struct {
	Exchanges []ExchangeView `json:"exchanges"`
}
