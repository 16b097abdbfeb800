package rules

import (
	"encoding/json"
	"fmt"
	"os"
)

// WebKitRule is a single content blocker rule as loaded by the extension
// runtime.  The assembler treats rules as opaque; this type documents the
// shape and builds the built-in fallback.
type WebKitRule struct {
	Trigger WebKitTrigger `json:"trigger"`
	Action  WebKitAction  `json:"action"`
}

// WebKitTrigger defines when a rule should activate.
type WebKitTrigger struct {
	URLFilter    string   `json:"url-filter"`
	ResourceType []string `json:"resource-type,omitempty"`
	LoadType     []string `json:"load-type,omitempty"`
	IfDomain     []string `json:"if-domain,omitempty"`
	UnlessDomain []string `json:"unless-domain,omitempty"`
}

// WebKitAction defines what to do when a rule triggers.
type WebKitAction struct {
	Type     string `json:"type"`
	Selector string `json:"selector,omitempty"`
}

// Action types.
const (
	ActionBlock              = "block"
	ActionBlockCookies       = "block-cookies"
	ActionCSSDisplayNone     = "css-display-none"
	ActionIgnorePreviousRule = "ignore-previous-rules"
)

// builtinEmptyRules is used when the emptyRules asset is missing.  The runtime
// rejects an empty rule list, so the no-op ruleset holds a single rule that
// can never match.
var builtinEmptyRules = []WebKitRule{{
	Trigger: WebKitTrigger{
		URLFilter: "^blocksync-noop:",
		IfDomain:  []string{"*blocksync.invalid"},
	},
	Action: WebKitAction{Type: ActionIgnorePreviousRule},
}}

// BuiltinEmptyRules returns the built-in no-op ruleset.
func BuiltinEmptyRules() []json.RawMessage {
	out := make([]json.RawMessage, 0, len(builtinEmptyRules))
	for _, r := range builtinEmptyRules {
		b, err := json.Marshal(r)
		if err != nil {
			// Static data; a failure here is a programming error.
			panic(fmt.Errorf("marshal builtin empty rules: %w", err))
		}
		out = append(out, b)
	}
	return out
}

// ReadArtifact decodes a materialized rule artifact.
func ReadArtifact(path string) ([]json.RawMessage, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	var rules []json.RawMessage
	if err := json.Unmarshal(b, &rules); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	return rules, nil
}
