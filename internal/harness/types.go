package harness

import (
	"github.com/roach88/blocksync/internal/engine"
)

// ResyncTrace is the deterministic part of one engine resync report.
type ResyncTrace struct {
	Seq        int64    `json:"seq"`
	Trigger    string   `json:"trigger"`
	Forced     bool     `json:"forced"`
	Categories []string `json:"categories"`
	Skipped    []string `json:"skipped,omitempty"`
	Fallback   bool     `json:"fallback"`
	Rules      int      `json:"rules"`

	// Error is the failure kind, if the resync failed.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success.  True if every expectation matched.
	Pass bool `json:"pass"`

	// Resyncs are the resyncs in order, the startup one first.
	Resyncs []ResyncTrace `json:"resyncs"`

	// Artifact is the final artifact content.
	Artifact []byte `json:"-"`

	// Paused is the final activity.
	Paused bool `json:"paused"`

	// Mode is the final persisted mode.
	Mode string `json:"mode"`

	// Errors contains expectation mismatches.  Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Resyncs: []ResyncTrace{},
		Errors:  []string{},
	}
}

// AddError adds a mismatch and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddResync appends the trace of rep.
func (r *Result) AddResync(rep engine.Report) {
	t := ResyncTrace{
		Seq:        rep.Seq,
		Trigger:    rep.Trigger,
		Forced:     rep.Forced,
		Categories: rep.Categories,
		Skipped:    rep.Skipped,
		Fallback:   rep.Fallback,
		Rules:      rep.Rules,
	}
	if rep.Err != nil {
		t.Error = string(engine.KindOf(rep.Err))
	}

	r.Resyncs = append(r.Resyncs, t)
}
