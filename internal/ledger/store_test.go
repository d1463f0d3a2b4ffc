package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"keygate/internal/ledger"
	"keygate/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	record, err := store.Append(ctx, ledger.Record{
		ContentID: "movie-1",
		Scheme:    "widevine",
		Kind:      ledger.KindSessionOpened,
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if record.ID == 0 {
		t.Fatal("expected entry ID to be assigned")
	}
	if record.CreatedAt.IsZero() {
		t.Fatal("expected created timestamp")
	}

	fetched, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.ContentID != "movie-1" || fetched.Kind != ledger.KindSessionOpened {
		t.Fatalf("unexpected fetched entry: %#v", fetched)
	}
}

func TestAppendValidatesInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	if _, err := store.Append(ctx, ledger.Record{Scheme: "widevine", Kind: ledger.KindKeyExchange}); err == nil {
		t.Fatal("expected error for missing content id")
	}
	if _, err := store.Append(ctx, ledger.Record{ContentID: "movie-1", Kind: ledger.Kind("bogus")}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestListFiltersByKind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	kinds := []ledger.Kind{
		ledger.KindSessionOpened,
		ledger.KindKeyExchange,
		ledger.KindKeysLoaded,
		ledger.KindKeyExchange,
	}
	for i, kind := range kinds {
		if _, err := store.Append(ctx, ledger.Record{
			ContentID: fmt.Sprintf("movie-%d", i),
			Scheme:    "widevine",
			Kind:      kind,
		}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != len(kinds) {
		t.Fatalf("expected %d entries, got %d", len(kinds), len(all))
	}
	if all[0].ID < all[1].ID {
		t.Fatal("expected newest entries first")
	}

	exchanges, err := store.List(ctx, ledger.KindKeyExchange)
	if err != nil {
		t.Fatalf("List by kind failed: %v", err)
	}
	if len(exchanges) != 2 {
		t.Fatalf("expected 2 key exchanges, got %d", len(exchanges))
	}
}

func TestListByContent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	for _, kind := range []ledger.Kind{ledger.KindSessionOpened, ledger.KindKeysLoaded, ledger.KindSessionClosed} {
		if _, err := store.Append(ctx, ledger.Record{ContentID: "movie-1", Scheme: "clearkey", Kind: kind}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if _, err := store.Append(ctx, ledger.Record{ContentID: "movie-2", Scheme: "clearkey", Kind: ledger.KindSessionOpened}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	records, err := store.ListByContent(ctx, "movie-1")
	if err != nil {
		t.Fatalf("ListByContent failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 entries for movie-1, got %d", len(records))
	}
	for _, record := range records {
		if record.ContentID != "movie-1" {
			t.Fatalf("unexpected content id %q", record.ContentID)
		}
	}
}

func TestHealthCountsFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	if _, err := store.Append(ctx, ledger.Record{ContentID: "movie-1", Scheme: "widevine", Kind: ledger.KindKeyExchange}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := store.Append(ctx, ledger.Record{ContentID: "movie-1", Scheme: "widevine", Kind: ledger.KindKeysLoaded}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := store.Append(ctx, ledger.Record{
		ContentID:    "movie-2",
		Scheme:       "widevine",
		Kind:         ledger.KindSessionError,
		ErrorMessage: "license denied",
	}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 3 {
		t.Fatalf("expected 3 total, got %d", health.Total)
	}
	if health.Exchanges != 1 {
		t.Fatalf("expected 1 exchange, got %d", health.Exchanges)
	}
	if health.Events != 2 {
		t.Fatalf("expected 2 events, got %d", health.Events)
	}
	if health.Failures != 1 {
		t.Fatalf("expected 1 failure, got %d", health.Failures)
	}
	if health.LastFailed == nil || health.LastFailed.ContentID != "movie-2" {
		t.Fatalf("unexpected last failure: %#v", health.LastFailed)
	}
}

func TestPruneAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := store.Append(ctx, ledger.Record{
			ContentID: fmt.Sprintf("movie-%d", i),
			Scheme:    "widevine",
			Kind:      ledger.KindKeyExchange,
		}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	removed, err := store.Prune(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected nothing pruned, removed %d", removed)
	}

	removed, err = store.Prune(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 4 {
		t.Fatalf("expected 4 pruned, removed %d", removed)
	}

	if _, err := store.Append(ctx, ledger.Record{ContentID: "movie-x", Scheme: "widevine", Kind: ledger.KindSessionOpened}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	cleared, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected 1 cleared, got %d", cleared)
	}
}
