package api

import (
	"time"

	"keygate/internal/drm"
	"keygate/internal/drm/session"
	"keygate/internal/ledger"
)

// FromSession converts a live session manager into its API representation.
// The secure decoder flag is only meaningful once a module session is held;
// probing failures leave it false.
func FromSession(contentID string, mgr *session.Manager, openedAt time.Time) SessionView {
	view := SessionView{
		ContentID: contentID,
		Scheme:    drm.SchemeName(mgr.SchemeID()),
		OpenCount: mgr.OpenCount(),
	}
	state := mgr.State()
	view.State = state.String()
	view.StateLabel = HumanizeLabel(view.State)
	if state == session.StateError {
		if err := mgr.Err(); err != nil {
			view.ErrorMessage = err.Error()
		}
	}
	if secure, err := mgr.RequiresSecureDecoder(""); err == nil {
		view.SecureDecoder = secure
	}
	if !openedAt.IsZero() {
		view.OpenedAt = openedAt.UTC().Format(dateTimeFormat)
	}
	return view
}

// FromLedgerRecord converts one ledger entry to its API representation.
func FromLedgerRecord(record *ledger.Record) ExchangeView {
	if record == nil {
		return ExchangeView{}
	}
	view := ExchangeView{
		ID:           record.ID,
		ContentID:    record.ContentID,
		Scheme:       record.Scheme,
		Kind:         string(record.Kind),
		KindLabel:    HumanizeLabel(string(record.Kind)),
		Detail:       record.Detail,
		ErrorMessage: record.ErrorMessage,
	}
	if !record.CreatedAt.IsZero() {
		view.CreatedAt = record.CreatedAt.UTC().Format(dateTimeFormat)
	}
	return view
}

// FromLedgerRecords converts a slice of ledger entries into API DTOs.
func FromLedgerRecords(records []*ledger.Record) []ExchangeView {
	if len(records) == 0 {
		return nil
	}
	out := make([]ExchangeView, 0, len(records))
	for _, record := range records {
		out = append(out, FromLedgerRecord(record))
	}
	return out
}

// FromLedgerHealth converts a ledger health summary to API payload.
func FromLedgerHealth(health ledger.HealthSummary) LedgerHealth {
	out := LedgerHealth{
		Total:     health.Total,
		Exchanges: health.Exchanges,
		Events:    health.Events,
		Failures:  health.Failures,
	}
	if health.LastFailed != nil {
		view := FromLedgerRecord(health.LastFailed)
		out.LastFailure = &view
	}
	return out
}
