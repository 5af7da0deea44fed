// Package models defines the domain types for mdnorm.
package models

import "time"

// DocumentRecord identifies one Markdown document in the corpus.
type DocumentRecord struct {
	ShortName string `json:"short_name"` // filename stem
	Path      string `json:"path"`       // slash-separated, relative to corpus root
}

// DocumentMetadata is the lightweight listing returned by the corpus walker.
type DocumentMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status is the per-document outcome of a run.
type Status string

const (
	StatusChanged   Status = "changed"
	StatusUnchanged Status = "unchanged"
	StatusSkipped   Status = "skipped" // incremental: inputs identical to last run
	StatusFailed    Status = "failed"
)

// Outcome records what happened to a single document.
type Outcome struct {
	Path      string   `json:"path"`
	Status    Status   `json:"status"`
	AddedTags []string `json:"added_tags,omitempty"`
	Rewrites  int      `json:"rewrites"`
	Drops     int      `json:"drops"`
	Error     string   `json:"error,omitempty"`
	ErrorKind string   `json:"error_kind,omitempty"`
}

// Collision is a short name claimed by more than one document.
// Winner keeps the name; Losers are unreachable through wiki references.
type Collision struct {
	ShortName string   `json:"short_name"`
	Winner    string   `json:"winner"`
	Losers    []string `json:"losers"`
}

// Failure is a failed document in a run report.
type Failure struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// Report is the end-of-run summary.
type Report struct {
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	DryRun     bool        `json:"dry_run"`
	Processed  int         `json:"processed"`
	Changed    int         `json:"changed"`
	Unchanged  int         `json:"unchanged"`
	Skipped    int         `json:"skipped"`
	Failures   []Failure   `json:"failures"`
	Collisions []Collision `json:"collisions,omitempty"`
	Cancelled  bool        `json:"cancelled,omitempty"`
}

// Failed returns the number of failed documents.
func (r *Report) Failed() int {
	return len(r.Failures)
}

// DocumentState is what the ledger remembers about a document after a run:
// its content checksum and the fingerprint of the inputs it was processed with.
type DocumentState struct {
	Path        string
	Checksum    string
	Fingerprint string
}
