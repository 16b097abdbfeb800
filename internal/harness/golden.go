package harness

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the deterministic outcome of a scenario: one line per
// resync followed by the artifact bytes.
//
//	scenario: <name>
//	resync <seq> <trigger> forced=<bool> fallback=<bool> rules=<n> categories=[...]
//	artifact:
//	<artifact>
func Snapshot(name string, res *Result) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "scenario: %s\n", name)
	for _, r := range res.Resyncs {
		fmt.Fprintf(
			&buf,
			"resync %d %s forced=%t fallback=%t rules=%d categories=[%s]",
			r.Seq,
			r.Trigger,
			r.Forced,
			r.Fallback,
			r.Rules,
			strings.Join(r.Categories, " "),
		)
		if len(r.Skipped) > 0 {
			fmt.Fprintf(&buf, " skipped=[%s]", strings.Join(r.Skipped, " "))
		}
		if r.Error != "" {
			fmt.Fprintf(&buf, " error=%s", r.Error)
		}
		buf.WriteByte('\n')
	}

	buf.WriteString("artifact:\n")
	buf.Write(res.Artifact)

	return buf.Bytes()
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file.  The golden file is stored in testdata/scenarios/golden/{name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) (res *Result, err error) {
	t.Helper()

	res, err = Run(context.Background(), s)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, s.Name, res)

	return res, nil
}

// AssertGolden compares the snapshot of an already executed scenario against
// its golden file.
func AssertGolden(t *testing.T, name string, res *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/scenarios/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, res))
}
