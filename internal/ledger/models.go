package ledger

import "time"

// Kind classifies a ledger entry.
type Kind string

const (
	KindSessionOpened   Kind = "session_opened"
	KindSessionClosed   Kind = "session_closed"
	KindProvisioning    Kind = "provisioning"
	KindKeyExchange     Kind = "key_exchange"
	KindKeysLoaded      Kind = "keys_loaded"
	KindKeysExpired     Kind = "keys_expired"
	KindSessionExpired  Kind = "session_expired"
	KindSessionError    Kind = "session_error"
	KindSessionReleased Kind = "session_released"
)

var allKinds = []Kind{
	KindSessionOpened,
	KindSessionClosed,
	KindProvisioning,
	KindKeyExchange,
	KindKeysLoaded,
	KindKeysExpired,
	KindSessionExpired,
	KindSessionError,
	KindSessionReleased,
}

var kindSet = func() map[Kind]struct{} {
	set := make(map[Kind]struct{}, len(allKinds))
	for _, kind := range allKinds {
		set[kind] = struct{}{}
	}
	return set
}()

// ValidKind reports whether the given kind is one the ledger records.
func ValidKind(kind Kind) bool {
	_, ok := kindSet[kind]
	return ok
}

// Record is one ledger entry.
type Record struct {
	ID           int64
	ContentID    string
	Scheme       string
	Kind         Kind
	Detail       string
	ErrorMessage string
	CreatedAt    time.Time
}

// Failed reports whether the entry recorded a failure.
func (r *Record) Failed() bool {
	return r.ErrorMessage != ""
}

// HealthSummary aggregates ledger contents for diagnostic output.
type HealthSummary struct {
	Total      int
	Exchanges  int
	Events     int
	Failures   int
	LastFailed *Record
}
