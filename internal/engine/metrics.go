package engine

import "time"

// Metrics observes engine activity.
type Metrics interface {
	// IncEvent counts one processed event of the given type.
	IncEvent(event string)

	// ObserveResync records the outcome and duration of a resync.  result is
	// "ok" or an [ErrorKind].
	ObserveResync(result string, dur time.Duration)

	// IncReload counts one reload outcome, "ok" or "error".
	IncReload(result string)

	// SetPaused reports the Activity axis.
	SetPaused(paused bool)

	// SetArtifactRules reports the number of rules in the current artifact.
	SetArtifactRules(n int)
}

// EmptyMetrics is a [Metrics] that does nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// IncEvent implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncEvent(_ string) {}

// ObserveResync implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) ObserveResync(_ string, _ time.Duration) {}

// IncReload implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncReload(_ string) {}

// SetPaused implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) SetPaused(_ bool) {}

// SetArtifactRules implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) SetArtifactRules(_ int) {}
