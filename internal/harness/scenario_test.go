package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content to a scenario file in dir.
func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()

	p := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))

	return p
}

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "assets"), 0o755))

	p := writeScenario(t, dir, `
name: valid
description: "All fields"
assets: assets
resync_id: fixed
setup:
  mode: custom
  categories: [comments]
  trusted: [example.com]
events:
  - event: trustDomain
    domain: example.com
  - event: setCategories
    categories: [social]
expect:
  categories: [social]
  paused: false
  resyncs: 2
`)

	s, err := LoadScenario(p)
	require.NoError(t, err)

	assert.Equal(t, "valid", s.Name)
	assert.Equal(t, filepath.Join(dir, "assets"), s.Assets)
	assert.Equal(t, "fixed", s.ResyncID)
	assert.Equal(t, "custom", s.Setup.Mode)
	require.Len(t, s.Events, 2)
	assert.Equal(t, "example.com", s.Events[0].Domain)
	assert.Equal(t, []string{"social"}, s.Events[1].Categories)
	require.NotNil(t, s.Expect.Paused)
	assert.False(t, *s.Expect.Paused)
	require.NotNil(t, s.Expect.Resyncs)
	assert.Equal(t, 2, *s.Expect.Resyncs)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	p := writeScenario(t, t.TempDir(), `
name: typo
description: "Misspelled key"
event: []
expect:
  fallback: true
`)

	_, err := LoadScenario(p)
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestValidateScenario(t *testing.T) {
	valid := func() *Scenario {
		return &Scenario{
			Name:        "s",
			Description: "d",
			Expect:      Expect{Fallback: true},
		}
	}
	zero := 0

	testCases := []struct {
		name    string
		mutate  func(s *Scenario)
		wantErr string
	}{{
		name:    "valid",
		mutate:  func(_ *Scenario) {},
		wantErr: "",
	}, {
		name:    "no_name",
		mutate:  func(s *Scenario) { s.Name = "" },
		wantErr: "name is required",
	}, {
		name:    "no_description",
		mutate:  func(s *Scenario) { s.Description = "" },
		wantErr: "description is required",
	}, {
		name:    "bad_mode",
		mutate:  func(s *Scenario) { s.Setup.Mode = "strict" },
		wantErr: `unknown mode "strict"`,
	}, {
		name:    "bad_setup_category",
		mutate:  func(s *Scenario) { s.Setup.Categories = []string{"cookies"} },
		wantErr: "setup: categories",
	}, {
		name:    "bad_trusted",
		mutate:  func(s *Scenario) { s.Setup.Trusted = []string{" "} },
		wantErr: "setup: trusted",
	}, {
		name:    "unknown_event",
		mutate:  func(s *Scenario) { s.Events = []Step{{Event: "explode"}} },
		wantErr: `events[0]: unknown notification "explode"`,
	}, {
		name:    "reload_event",
		mutate:  func(s *Scenario) { s.Events = []Step{{Event: "reload"}} },
		wantErr: "not an engine event",
	}, {
		name:    "trust_without_domain",
		mutate:  func(s *Scenario) { s.Events = []Step{{Event: "trustDomain"}} },
		wantErr: "domain is required",
	}, {
		name: "pause_with_domain",
		mutate: func(s *Scenario) {
			s.Events = []Step{{Event: "pause", Domain: "example.com"}}
		},
		wantErr: "takes no arguments",
	}, {
		name: "domain_with_categories",
		mutate: func(s *Scenario) {
			s.Events = []Step{{Event: "activeDomainChanged", Categories: []string{"social"}}}
		},
		wantErr: "takes no categories",
	}, {
		name: "bad_event_category",
		mutate: func(s *Scenario) {
			s.Events = []Step{{Event: "setCategories", Categories: []string{"cookies"}}}
		},
		wantErr: `unknown category "cookies"`,
	}, {
		name: "both_expectations",
		mutate: func(s *Scenario) {
			s.Expect.Categories = []string{"social"}
		},
		wantErr: "mutually exclusive",
	}, {
		name:    "no_expectation",
		mutate:  func(s *Scenario) { s.Expect.Fallback = false },
		wantErr: "fallback or categories is required",
	}, {
		name:    "zero_resyncs",
		mutate:  func(s *Scenario) { s.Expect.Resyncs = &zero },
		wantErr: "startup resync always runs",
	}, {
		name: "missing_with_assets",
		mutate: func(s *Scenario) {
			s.Assets = os.TempDir()
			s.Setup.Missing = []string{"social"}
		},
		wantErr: "requires the generated asset tree",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := valid()
			tc.mutate(s)

			err := validateScenario(s)
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tc.wantErr)
			}
		})
	}
}
