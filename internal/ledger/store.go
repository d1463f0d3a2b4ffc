package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"keygate/internal/config"
)

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.LedgerPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the ledger database location.
func (s *Store) Path() string {
	return s.path
}

// Append inserts a new ledger entry and returns it with its assigned ID.
func (s *Store) Append(ctx context.Context, record Record) (*Record, error) {
	if strings.TrimSpace(record.ContentID) == "" {
		return nil, errors.New("content id is required")
	}
	if !ValidKind(record.Kind) {
		return nil, fmt.Errorf("unknown ledger kind %q", record.Kind)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO exchanges (content_id, scheme, kind, detail, error_message, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		record.ContentID,
		record.Scheme,
		string(record.Kind),
		nullableString(record.Detail),
		nullableString(record.ErrorMessage),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a ledger entry by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM exchanges WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return record, nil
}

// List returns entries filtered by kind set (or all entries when no kind is
// provided), newest first.
func (s *Store) List(ctx context.Context, kinds ...Kind) ([]*Record, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + recordColumns + ` FROM exchanges`
	orderClause := ` ORDER BY id DESC`

	if len(kinds) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(kinds))
		args := make([]any, len(kinds))
		for i, kind := range kinds {
			args[i] = string(kind)
		}
		query := baseQuery + ` WHERE kind IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ListByContent returns all entries for one content item, newest first.
func (s *Store) ListByContent(ctx context.Context, contentID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+recordColumns+` FROM exchanges WHERE content_id = ? ORDER BY id DESC`,
		contentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list entries by content: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// Stats returns a count of entries grouped by kind.
func (s *Store) Stats(ctx context.Context) (map[Kind]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(1) FROM exchanges GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Kind]int)
	for rows.Next() {
		var kind Kind
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		stats[kind] = count
	}
	return stats, rows.Err()
}

// Health aggregates ledger state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for kind, count := range stats {
		health.Total += count
		switch kind {
		case KindProvisioning, KindKeyExchange:
			health.Exchanges += count
		default:
			health.Events += count
		}
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM exchanges WHERE error_message IS NOT NULL AND error_message != ''`,
	)
	if err := row.Scan(&health.Failures); err != nil {
		return HealthSummary{}, fmt.Errorf("count failures: %w", err)
	}

	if health.Failures > 0 {
		row := s.db.QueryRowContext(
			ctx,
			`SELECT `+recordColumns+` FROM exchanges
             WHERE error_message IS NOT NULL AND error_message != ''
             ORDER BY id DESC LIMIT 1`,
		)
		record, err := scanRecord(row)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return HealthSummary{}, fmt.Errorf("last failure: %w", err)
		}
		health.LastFailed = record
	}

	return health, nil
}

// Prune removes entries older than the cutoff and returns the removed count.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM exchanges WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune ledger: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all entries from the ledger.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exchanges`)
	if err != nil {
		return 0, fmt.Errorf("clear ledger: %w", err)
	}
	return res.RowsAffected()
}

const recordColumns = "id, content_id, scheme, kind, detail, error_message, created_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id         int64
		contentID  string
		scheme     string
		kindStr    string
		detail     sql.NullString
		errMessage sql.NullString
		createdRaw string
	)

	if err := scanner.Scan(&id, &contentID, &scheme, &kindStr, &detail, &errMessage, &createdRaw); err != nil {
		return nil, err
	}

	record := &Record{
		ID:           id,
		ContentID:    contentID,
		Scheme:       scheme,
		Kind:         Kind(kindStr),
		Detail:       detail.String,
		ErrorMessage: errMessage.String,
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		record.CreatedAt = created
	}
	return record, nil
}

func collectRecords(rows *sql.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
