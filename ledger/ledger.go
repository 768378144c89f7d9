// Package ledger anchors article fingerprints to an external immutable
// ledger.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrDisabled is returned by New when the ledger is not configured.
	ErrDisabled = errors.New("ledger anchoring disabled")
	// ErrAnchor matches every failed submission or lookup.
	ErrAnchor = errors.New("ledger anchor failure")
	// ErrNotAnchored is returned by Lookup for a fingerprint the ledger
	// does not hold.
	ErrNotAnchored = errors.New("fingerprint not anchored")
)

const (
	DefaultGasLimit = 200000
	DefaultTimeout  = 2 * time.Minute
)

// Payload is the record written to the ledger for one article.
type Payload struct {
	Fingerprint  string
	CanonicalURL string
	PublishedAt  time.Time
}

// Anchor submits payloads to a ledger. A successful Submit returns the
// ledger reference of the write.
type Anchor interface {
	Submit(ctx context.Context, p Payload) (string, error)
}

// Record is what the ledger holds for an anchored fingerprint.
type Record struct {
	SourceURL  string    `json:"source_url"`
	AnchoredAt time.Time `json:"anchored_at"`
	Submitter  string    `json:"submitter"`
}

// Verifier reads anchored fingerprints back from the ledger.
type Verifier interface {
	Lookup(ctx context.Context, fingerprint string) (*Record, error)
}

// Config holds the ledger connection settings.
type Config struct {
	RPCURL          string        `yaml:"rpc_url"`
	ContractAddress string        `yaml:"contract_address"`
	PrivateKey      string        `yaml:"private_key"`
	GasLimit        uint64        `yaml:"gas_limit"`
	Timeout         time.Duration `yaml:"timeout"`
}

// Enabled reports whether every setting needed to submit is present.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.RPCURL) != "" &&
		strings.TrimSpace(c.ContractAddress) != "" &&
		strings.TrimSpace(c.PrivateKey) != ""
}

func (c Config) withDefaults() Config {
	if c.GasLimit == 0 {
		c.GasLimit = DefaultGasLimit
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// New builds the configured anchor. It returns (nil, ErrDisabled) when the
// configuration is incomplete; callers treat that as anchoring switched off.
func New(ctx context.Context, cfg Config) (Anchor, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	anchor, err := DialEVM(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return anchor, nil
}

// anchorError wraps err so that errors.Is(err, ErrAnchor) holds.
func anchorError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrAnchor, op, err)
}
