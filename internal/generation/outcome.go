package generation

import (
	"time"

	"github.com/jonathan/resume-pipeline/internal/types"
)

// Outcome is the result of one provider attempt: either a document or a failure
type Outcome struct {
	Provider string
	Document *types.ResumeDocument
	Failure  *ProviderFailure
	Latency  time.Duration
}

// Ok builds a successful outcome
func Ok(provider string, doc *types.ResumeDocument, latency time.Duration) Outcome {
	return Outcome{Provider: provider, Document: doc, Latency: latency}
}

// Err builds a failed outcome
func Err(f ProviderFailure, latency time.Duration) Outcome {
	return Outcome{Provider: f.Provider, Failure: &f, Latency: latency}
}

// IsOk reports whether the attempt produced a document
func (o Outcome) IsOk() bool {
	return o.Failure == nil && o.Document != nil
}

// AttemptRecord summarizes one provider attempt for artifact metadata
type AttemptRecord struct {
	Provider  string `json:"provider"`
	LatencyMS int64  `json:"latency_ms"`
	Outcome   string `json:"outcome"`
	Fallback  bool   `json:"fallback"`
}

// Record converts an outcome into its attempt record
func (o Outcome) Record(fallback bool) AttemptRecord {
	rec := AttemptRecord{
		Provider:  o.Provider,
		LatencyMS: o.Latency.Milliseconds(),
		Outcome:   "ok",
		Fallback:  fallback,
	}
	if o.Failure != nil {
		rec.Outcome = string(o.Failure.Kind)
	}
	return rec
}
