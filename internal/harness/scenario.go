package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/blocksync/internal/category"
	"github.com/roach88/blocksync/internal/hostname"
	"github.com/roach88/blocksync/internal/notify"
	"github.com/roach88/blocksync/internal/state"
	"gopkg.in/yaml.v3"
)

// Scenario defines a behavioral scenario: an initial state, a sequence of
// events and the expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario.  It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Assets is an optional asset tree.  Relative paths are resolved against
	// the scenario file.  If empty, the standard generated tree is used.
	Assets string `yaml:"assets,omitempty"`

	// ResyncID is the fixed resync ID.  If empty, "test-resync" is used.
	ResyncID string `yaml:"resync_id,omitempty"`

	// Setup is the state persisted before the engine starts.
	Setup Setup `yaml:"setup,omitempty"`

	// Events are delivered to the engine in order.
	Events []Step `yaml:"events"`

	// Expect is checked after the last event.
	Expect Expect `yaml:"expect"`
}

// Setup is the persisted state a scenario starts from.
type Setup struct {
	// Mode is the persisted filtering mode.  Empty keeps the default.
	Mode string `yaml:"mode,omitempty"`

	// Categories is the persisted custom category set.
	Categories []string `yaml:"categories,omitempty"`

	// Trusted are domains already trusted.
	Trusted []string `yaml:"trusted,omitempty"`

	// Missing are categories whose rule file is removed from the generated
	// asset tree.
	Missing []string `yaml:"missing,omitempty"`
}

// Step is a single event.
type Step struct {
	// Event is the notification name.
	Event string `yaml:"event"`

	// Domain is the argument of the domain events.
	Domain string `yaml:"domain,omitempty"`

	// Categories is the argument of setCategories.
	Categories []string `yaml:"categories,omitempty"`
}

// Expect is the expected outcome.  Fallback and Categories are mutually
// exclusive, and one of them is required.
type Expect struct {
	// Fallback expects the empty ruleset.
	Fallback bool `yaml:"fallback,omitempty"`

	// Categories expects the merge of these category files.
	Categories []string `yaml:"categories,omitempty"`

	// Paused, if set, is the expected activity.
	Paused *bool `yaml:"paused,omitempty"`

	// Mode, if set, is the expected persisted mode.
	Mode string `yaml:"mode,omitempty"`

	// Resyncs, if set, is the expected number of resyncs.
	Resyncs *int `yaml:"resyncs,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "event:" vs "events:".
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if s.Assets != "" && !filepath.IsAbs(s.Assets) {
		s.Assets = filepath.Join(filepath.Dir(path), s.Assets)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &s, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Assets != "" {
		if _, err := os.Stat(s.Assets); err != nil {
			return fmt.Errorf("assets: %w", err)
		}
		if len(s.Setup.Missing) > 0 {
			return fmt.Errorf("setup.missing requires the generated asset tree")
		}
	}

	if err := validateSetup(s.Setup); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	for i, step := range s.Events {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
	}

	return validateExpect(s.Expect)
}

// validateSetup checks the initial state.
func validateSetup(st Setup) error {
	if st.Mode != "" {
		if _, err := state.ParseMode(st.Mode); err != nil {
			return err
		}
	}

	if _, err := category.ParseAll(st.Categories); err != nil {
		return fmt.Errorf("categories: %w", err)
	}

	if _, err := category.ParseAll(st.Missing); err != nil {
		return fmt.Errorf("missing: %w", err)
	}

	for _, d := range st.Trusted {
		if _, err := hostname.Normalize(d); err != nil {
			return fmt.Errorf("trusted: %w", err)
		}
	}

	return nil
}

// validateStep checks a single event and its arguments.
func validateStep(step Step) error {
	name, err := notify.ParseName(step.Event)
	if err != nil {
		return err
	}

	switch name {
	case notify.NameTrustDomain, notify.NameUntrustDomain:
		if step.Domain == "" {
			return fmt.Errorf("%s: domain is required", name)
		}
	case notify.NameActiveDomainChanged:
		// An empty domain means no active tab.
	case notify.NameSetCategories:
		if _, err = category.ParseAll(step.Categories); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		return nil
	case notify.NameReload:
		return fmt.Errorf("%s is not an engine event", name)
	default:
		if step.Domain != "" || len(step.Categories) > 0 {
			return fmt.Errorf("%s takes no arguments", name)
		}

		return nil
	}

	if len(step.Categories) > 0 {
		return fmt.Errorf("%s takes no categories", name)
	}

	if step.Domain == "" {
		return nil
	}

	if _, err = hostname.Normalize(step.Domain); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	return nil
}

// validateExpect checks the expectation.
func validateExpect(e Expect) error {
	switch {
	case e.Fallback && len(e.Categories) > 0:
		return fmt.Errorf("expect: fallback and categories are mutually exclusive")
	case !e.Fallback && len(e.Categories) == 0:
		return fmt.Errorf("expect: fallback or categories is required")
	}

	if _, err := category.ParseAll(e.Categories); err != nil {
		return fmt.Errorf("expect.categories: %w", err)
	}

	if e.Mode != "" {
		if _, err := state.ParseMode(e.Mode); err != nil {
			return fmt.Errorf("expect.mode: %w", err)
		}
	}

	if e.Resyncs != nil && *e.Resyncs < 1 {
		return fmt.Errorf("expect.resyncs: the startup resync always runs")
	}

	return nil
}
