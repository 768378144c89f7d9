package articles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
	// DefaultPingTimeout is the default timeout for ping operations
	DefaultPingTimeout = 5 * time.Second
)

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the config as a lib/pq connection string.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode,
	)
}

// PostgresStore stores articles in PostgreSQL.
type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresStore wraps an existing connection. The schema is not touched.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// OpenPostgres connects, verifies the connection, and migrates the schema.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	store := NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Migrate creates the articles table and indexes if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS articles (
			id UUID PRIMARY KEY,
			canonical_url TEXT NOT NULL UNIQUE,
			source_name TEXT NOT NULL,
			title TEXT NOT NULL,
			body_text TEXT NOT NULL,
			published_at TIMESTAMPTZ NOT NULL,
			content_fingerprint CHAR(64) NOT NULL,
			ledger_reference TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_articles_fingerprint ON articles (content_fingerprint);
		CREATE INDEX IF NOT EXISTS idx_articles_pending ON articles (created_at) WHERE ledger_reference IS NULL;
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate articles schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return persistenceError("ping", err)
	}
	return nil
}

// Exists reports whether the canonical URL is stored.
func (s *PostgresStore) Exists(ctx context.Context, canonicalURL string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM articles WHERE canonical_url = $1)`, canonicalURL)
	if err != nil {
		return false, persistenceError("check article existence", err)
	}
	return exists, nil
}

// InsertIfAbsent inserts the article unless the canonical URL is taken.
func (s *PostgresStore) InsertIfAbsent(ctx context.Context, article *Article) (uuid.UUID, bool, error) {
	if err := article.Validate(); err != nil {
		return uuid.Nil, false, err
	}

	row := prepareInsert(article, s.now())

	query := `
		INSERT INTO articles (
			id, canonical_url, source_name, title, body_text,
			published_at, content_fingerprint, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (canonical_url) DO NOTHING
		RETURNING id
	`

	var id uuid.UUID
	err := s.db.QueryRowxContext(ctx, query,
		row.ID,
		row.CanonicalURL,
		row.SourceName,
		row.Title,
		row.BodyText,
		row.PublishedAt,
		row.Fingerprint,
		row.CreatedAt,
	).Scan(&id)
	if err == nil {
		article.ID = id
		article.CreatedAt = row.CreatedAt
		article.LedgerReference = nil
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, persistenceError("insert article", err)
	}

	if err := s.db.GetContext(ctx, &id,
		`SELECT id FROM articles WHERE canonical_url = $1`, row.CanonicalURL); err != nil {
		return uuid.Nil, false, persistenceError("read existing article", err)
	}
	return id, false, nil
}

// AttachLedgerReference sets the ledger reference if none is set.
func (s *PostgresStore) AttachLedgerReference(ctx context.Context, id uuid.UUID, reference string) error {
	if strings.TrimSpace(reference) == "" {
		return fmt.Errorf("%w: ledger reference is empty", ErrInvalidArticle)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE articles SET ledger_reference = $1 WHERE id = $2 AND ledger_reference IS NULL`,
		reference, id,
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
	err = s.db.GetContext(ctx, &current,
		`SELECT ledger_reference FROM articles WHERE id = $1`, id)
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

const postgresColumns = `id, canonical_url, source_name, title, body_text,
	published_at, content_fingerprint, ledger_reference, created_at`

// Get returns an article by id.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Article, error) {
	var a Article
	err := s.db.GetContext(ctx, &a,
		`SELECT `+postgresColumns+` FROM articles WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistenceError("get article", err)
	}
	return &a, nil
}

// PendingAnchors lists unanchored articles, oldest first.
func (s *PostgresStore) PendingAnchors(ctx context.Context, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}

	var out []Article
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+postgresColumns+` FROM articles
		 WHERE ledger_reference IS NULL
		 ORDER BY created_at ASC, canonical_url ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, persistenceError("list pending anchors", err)
	}
	return out, nil
}

// FindByFingerprint lists articles with the given content fingerprint.
func (s *PostgresStore) FindByFingerprint(ctx context.Context, fp string) ([]Article, error) {
	var out []Article
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+postgresColumns+` FROM articles
		 WHERE content_fingerprint = $1
		 ORDER BY created_at ASC`, strings.ToLower(fp))
	if err != nil {
		return nil, persistenceError("find by fingerprint", err)
	}
	return out, nil
}

// Count returns the number of stored articles.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM articles`); err != nil {
		return 0, persistenceError("count articles", err)
	}
	return n, nil
}
