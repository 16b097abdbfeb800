package testutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/roach88/blocksync/internal/category"
	"github.com/roach88/blocksync/internal/rules"
)

// EmptyRules is the content of the emptyRules asset written by GenerateAssets.
const EmptyRules = `[{"trigger":{"url-filter":"^blocksync-test-noop:"},"action":{"type":"ignore-previous-rules"}}]`

// RuleFor returns the single compact rule that GenerateAssets stores for id.
func RuleFor(id category.ID) string {
	return fmt.Sprintf(`{"trigger":{"url-filter":%q},"action":{"type":"block"}}`, id.String())
}

// GenerateAssets writes the standard asset tree under root: one file per
// category holding RuleFor(id), plus the emptyRules asset.  The files are
// written in indented form so that assembly exercises compaction.
func GenerateAssets(root string) (l rules.Layout, err error) {
	l = rules.Layout{Root: root}
	if err = os.MkdirAll(l.CategoryFolder(), 0o755); err != nil {
		return l, fmt.Errorf("creating asset tree: %w", err)
	}

	for _, id := range category.All() {
		body := "[\n  " + strings.ReplaceAll(RuleFor(id), `,"action"`, `, "action"`) + "\n]\n"
		p := l.FilePath(l.CategoryFolder(), category.FileName(id))
		if err = os.WriteFile(p, []byte(body), 0o644); err != nil {
			return l, fmt.Errorf("writing %s asset: %w", id, err)
		}
	}

	if err = os.WriteFile(l.EmptyRulesPath(), []byte(EmptyRules+"\n"), 0o644); err != nil {
		return l, fmt.Errorf("writing empty rules asset: %w", err)
	}

	return l, nil
}

// Merged returns the artifact expected for ids over the standard asset tree.
func Merged(ids ...category.ID) string {
	if len(ids) == 0 {
		return EmptyRules + "\n"
	}

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, RuleFor(id))
	}

	return "[" + strings.Join(parts, ",") + "]\n"
}
