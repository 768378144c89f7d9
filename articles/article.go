// Package articles defines the persisted Article entity and the stores that
// hold it. A store guarantees canonical URL uniqueness itself; callers never
// rely on a prior existence check for correctness.
package articles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/newsledger/fingerprint"
)

// Store errors.
var (
	ErrNotFound        = errors.New("article not found")
	ErrAlreadyAnchored = errors.New("article already anchored with a different reference")
	ErrPersistence     = errors.New("persistence failure")
	ErrInvalidArticle  = errors.New("invalid article")
)

// DefaultPendingLimit bounds PendingAnchors when no limit is given.
const DefaultPendingLimit = 100

// Article is a crawled news article.
type Article struct {
	ID              uuid.UUID `json:"id" db:"id"`
	CanonicalURL    string    `json:"canonical_url" db:"canonical_url"`
	SourceName      string    `json:"source_name" db:"source_name"`
	Title           string    `json:"title" db:"title"`
	BodyText        string    `json:"body_text" db:"body_text"`
	PublishedAt     time.Time `json:"published_at" db:"published_at"`
	Fingerprint     string    `json:"content_fingerprint" db:"content_fingerprint"`
	LedgerReference *string   `json:"ledger_reference,omitempty" db:"ledger_reference"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Anchored reports whether a ledger reference has been attached.
func (a *Article) Anchored() bool {
	return a.LedgerReference != nil && *a.LedgerReference != ""
}

// Validate checks the fields a store requires before insert.
func (a *Article) Validate() error {
	if strings.TrimSpace(a.CanonicalURL) == "" {
		return fmt.Errorf("%w: canonical url is empty", ErrInvalidArticle)
	}
	if strings.TrimSpace(a.SourceName) == "" {
		return fmt.Errorf("%w: source name is empty", ErrInvalidArticle)
	}
	if !fingerprint.Valid(a.Fingerprint) {
		return fmt.Errorf("%w: malformed content fingerprint", ErrInvalidArticle)
	}
	if a.PublishedAt.IsZero() {
		return fmt.Errorf("%w: publication timestamp is zero", ErrInvalidArticle)
	}
	return nil
}

// Repository is the narrow store contract the crawl pipeline consumes.
type Repository interface {
	// Exists reports whether an article with the canonical URL is stored.
	Exists(ctx context.Context, canonicalURL string) (bool, error)
	// InsertIfAbsent atomically inserts the article unless its canonical URL
	// is already stored, in which case the existing id is returned with
	// inserted=false and the new content is discarded.
	InsertIfAbsent(ctx context.Context, article *Article) (id uuid.UUID, inserted bool, err error)
	// AttachLedgerReference sets the ledger reference once. Re-attaching the
	// same reference is a no-op; a different one yields ErrAlreadyAnchored.
	AttachLedgerReference(ctx context.Context, id uuid.UUID, reference string) error
	// Get returns the article with the given id or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Article, error)
	// PendingAnchors lists articles without a ledger reference, oldest first.
	PendingAnchors(ctx context.Context, limit int) ([]Article, error)
	// FindByFingerprint lists articles whose body hashes to fp.
	FindByFingerprint(ctx context.Context, fp string) ([]Article, error)
	// Count returns the number of stored articles.
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// prepareInsert fills the identity and creation time of a new row.
func prepareInsert(a *Article, now time.Time) Article {
	row := *a
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.PublishedAt = row.PublishedAt.UTC()
	row.CreatedAt = row.CreatedAt.UTC()
	row.LedgerReference = nil
	return row
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
