package testutil

import (
	"context"
	"os"
	"sync"
)

// ReloadCall is one recorded reload.
type ReloadCall struct {
	// ArtifactID is the ID passed to Reload.
	ArtifactID string

	// Artifact is the artifact content at the moment of the call, if
	// RecordingReloader.ArtifactPath is set.
	Artifact string
}

// RecordingReloader records reload calls and answers them with Err.
//
// Thread-safety: RecordingReloader is safe for concurrent use.
type RecordingReloader struct {
	// ArtifactPath, if set, is read on every call.
	ArtifactPath string

	mu    sync.Mutex
	err   error
	calls []ReloadCall
}

// Reload records the call and returns a future holding the configured error.
func (r *RecordingReloader) Reload(_ context.Context, artifactID string) <-chan error {
	call := ReloadCall{ArtifactID: artifactID}
	if r.ArtifactPath != "" {
		b, _ := os.ReadFile(r.ArtifactPath)
		call.Artifact = string(b)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, call)

	ch := make(chan error, 1)
	ch <- r.err

	return ch
}

// SetErr makes subsequent reloads fail with err.
func (r *RecordingReloader) SetErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.err = err
}

// Calls returns a copy of the recorded calls.
func (r *RecordingReloader) Calls() []ReloadCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]ReloadCall(nil), r.calls...)
}
