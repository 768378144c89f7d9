package articles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore stores articles in a SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serialises writers in-process and keeps SQLite's file
	// lock from surfacing as "database is locked".
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// sqliteDSN adds a busy timeout for other processes sharing the file.
func sqliteDSN(path string) string {
	if strings.Contains(path, "_busy_timeout") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000"
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		canonical_url TEXT NOT NULL UNIQUE,
		source_name TEXT NOT NULL,
		title TEXT NOT NULL,
		body_text TEXT NOT NULL,
		published_at TEXT NOT NULL,
		content_fingerprint TEXT NOT NULL,
		ledger_reference TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_articles_fingerprint ON articles (content_fingerprint);
	CREATE INDEX IF NOT EXISTS idx_articles_pending ON articles (created_at) WHERE ledger_reference IS NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return persistenceError("ping", err)
	}
	return nil
}

// Exists reports whether the canonical URL is stored.
func (s *SQLiteStore) Exists(ctx context.Context, canonicalURL string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM articles WHERE canonical_url = ?", canonicalURL,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, persistenceError("check article existence", err)
	}
	return true, nil
}

// InsertIfAbsent inserts the article unless the canonical URL is taken. The
// UNIQUE constraint makes the check and insert a single atomic step.
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, article *Article) (uuid.UUID, bool, error) {
	if err := article.Validate(); err != nil {
		return uuid.Nil, false, err
	}

	row := prepareInsert(article, s.now())

	query := `
		INSERT INTO articles (
			id, canonical_url, source_name, title, body_text,
			published_at, content_fingerprint, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (canonical_url) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		row.ID.String(),
		row.CanonicalURL,
		row.SourceName,
		row.Title,
		row.BodyText,
		formatTime(row.PublishedAt),
		row.Fingerprint,
		formatTime(row.CreatedAt),
	)
	if err != nil {
		return uuid.Nil, false, persistenceError("insert article", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return uuid.Nil, false, persistenceError("insert article", err)
	}
	if affected == 1 {
		article.ID = row.ID
		article.CreatedAt = row.CreatedAt
		article.LedgerReference = nil
		return row.ID, true, nil
	}

	var existing string
	err = s.db.QueryRowContext(ctx,
		"SELECT id FROM articles WHERE canonical_url = ?", row.CanonicalURL,
	).Scan(&existing)
	if err != nil {
		return uuid.Nil, false, persistenceError("read existing article", err)
	}

	id, err := uuid.Parse(existing)
	if err != nil {
		return uuid.Nil, false, persistenceError("parse existing article id", err)
	}
	return id, false, nil
}

// AttachLedgerReference sets the ledger reference if none is set.
func (s *SQLiteStore) AttachLedgerReference(ctx context.Context, id uuid.UUID, reference string) error {
	if strings.TrimSpace(reference) == "" {
		return fmt.Errorf("%w: ledger reference is empty", ErrInvalidArticle)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE articles SET ledger_reference = ? WHERE id = ? AND ledger_reference IS NULL",
		reference, id.String(),
	)
	if err != nil {
		return persistenceError("attach ledger reference", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return persistenceError("attach ledger reference", err)
	}
	if affected == 1 {
		return nil
	}

	var current sql.NullString
	err = s.db.QueryRowContext(ctx,
		"SELECT ledger_reference FROM articles WHERE id = ?", id.String(),
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return persistenceError("read ledger reference", err)
	}

	if !current.Valid {
		return persistenceError("attach ledger reference", errors.New("row changed concurrently"))
	}
	return compareReference(current.String, reference)
}

const sqliteColumns = `id, canonical_url, source_name, title, body_text,
	published_at, content_fingerprint, ledger_reference, created_at`

// Get returns an article by id.
func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*Article, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sqliteColumns+" FROM articles WHERE id = ?", id.String())

	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistenceError("get article", err)
	}
	return article, nil
}

// PendingAnchors lists unanchored articles, oldest first.
func (s *SQLiteStore) PendingAnchors(ctx context.Context, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sqliteColumns+" FROM articles WHERE ledger_reference IS NULL ORDER BY created_at ASC, canonical_url ASC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, persistenceError("list pending anchors", err)
	}
	return collectArticles(rows)
}

// FindByFingerprint lists articles with the given content fingerprint.
func (s *SQLiteStore) FindByFingerprint(ctx context.Context, fp string) ([]Article, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sqliteColumns+" FROM articles WHERE content_fingerprint = ? ORDER BY created_at ASC",
		strings.ToLower(fp),
	)
	if err != nil {
		return nil, persistenceError("find by fingerprint", err)
	}
	return collectArticles(rows)
}

// Count returns the number of stored articles.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&n); err != nil {
		return 0, persistenceError("count articles", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*Article, error) {
	var (
		a           Article
		id          string
		publishedAt string
		createdAt   string
		reference   sql.NullString
	)

	err := row.Scan(&id, &a.CanonicalURL, &a.SourceName, &a.Title, &a.BodyText,
		&publishedAt, &a.Fingerprint, &reference, &createdAt)
	if err != nil {
		return nil, err
	}

	if a.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid article id %q: %w", id, err)
	}
	if a.PublishedAt, err = parseTime(publishedAt); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if reference.Valid {
		ref := reference.String
		a.LedgerReference = &ref
	}

	return &a, nil
}

func collectArticles(rows *sql.Rows) ([]Article, error) {
	defer rows.Close()

	var out []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, persistenceError("scan article", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("iterate articles", err)
	}
	return out, nil
}

// sqliteTimeLayout is fixed width so TEXT ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// compareReference resolves a conditional update that matched no row
// against the reference currently stored.
func compareReference(current, reference string) error {
	if current == reference {
		return nil
	}
	return ErrAlreadyAnchored
}
