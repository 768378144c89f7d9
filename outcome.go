package newsledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a step of the per-URL crawl state machine.
type State string

const (
	StateDiscovered       State = "discovered"
	StateSkipped          State = "skipped"
	StateExtracting       State = "extracting"
	StateExtractFailed    State = "extract_failed"
	StateExtracted        State = "extracted"
	StatePersistFailed    State = "persist_failed"
	StatePersisted        State = "persisted"
	StateAlreadyPersisted State = "already_persisted"
	StateAnchorSkipped    State = "anchor_skipped"
	StateAnchoring        State = "anchoring"
	StateAnchorFailed     State = "anchor_failed"
	StateAnchored         State = "anchored"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateSkipped, StateExtractFailed, StatePersistFailed,
		StateAlreadyPersisted, StateAnchorSkipped, StateAnchorFailed, StateAnchored:
		return true
	}
	return false
}

// Failed reports whether s is a terminal failure.
func (s State) Failed() bool {
	return s == StateExtractFailed || s == StatePersistFailed || s == StateAnchorFailed
}

// Outcome is the terminal result for one URL.
type Outcome struct {
	URL       string    `json:"url"`
	SourceID  string    `json:"source"`
	State     State     `json:"state"`
	ArticleID uuid.UUID `json:"article_id,omitempty"`
	Reference string    `json:"ledger_reference,omitempty"`
	Error     string    `json:"error,omitempty"`
	Err       error     `json:"-"`
}

// Outcomes is a list of URL outcomes.
type Outcomes []Outcome

// Count returns how many outcomes ended in state.
func (o Outcomes) Count(state State) int {
	n := 0
	for _, outcome := range o {
		if outcome.State == state {
			n++
		}
	}
	return n
}

// Counts tallies outcomes per state.
func (o Outcomes) Counts() map[State]int {
	counts := make(map[State]int)
	for _, outcome := range o {
		counts[outcome.State]++
	}
	return counts
}

// SourceReport records how discovery went for one source.
type SourceReport struct {
	SourceID string `json:"source"`
	Name     string `json:"name"`
	Links    int    `json:"links"`
	Error    string `json:"error,omitempty"`
	Err      error  `json:"-"`
}

// CycleReport summarizes one crawl cycle. It is safe to append from
// concurrent source workers.
type CycleReport struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Sources    []SourceReport `json:"sources"`
	Outcomes   Outcomes       `json:"outcomes"`
	// Sweep holds the pending-anchor retries run before discovery.
	Sweep Outcomes `json:"sweep,omitempty"`

	mu sync.Mutex
}

func newCycleReport(now time.Time) *CycleReport {
	return &CycleReport{StartedAt: now}
}

func (r *CycleReport) addSource(s SourceReport) {
	if s.Err != nil {
		s.Error = s.Err.Error()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sources = append(r.Sources, s)
}

func (r *CycleReport) addOutcome(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Outcomes = append(r.Outcomes, o)
}

// FailedSources returns the number of sources whose discovery failed.
func (r *CycleReport) FailedSources() int {
	n := 0
	for _, s := range r.Sources {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// Duration is the wall time of the cycle.
func (r *CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
