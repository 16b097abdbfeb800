package rules

import (
	"path/filepath"

	"github.com/roach88/blocksync/internal/category"
)

const (
	// CategoryDir is the folder under the asset root holding one rule file
	// per category.
	CategoryDir = "BlockListByCategory"

	// EmptyRulesName is the fallback rule file used whenever filtering must
	// be inert.
	EmptyRulesName = "emptyRules"

	// Ext is the rule file extension.
	Ext = ".json"
)

// Layout resolves rule assets under a fixed two-level folder structure:
//
//	<root>/BlockListByCategory/<category>.json
//	<root>/emptyRules.json
type Layout struct {
	Root string
}

// CategoryFolder returns the folder holding the per-category rule files.
func (l Layout) CategoryFolder() string {
	return filepath.Join(l.Root, CategoryDir)
}

// EmptyRulesPath returns the path of the fallback rule file.
func (l Layout) EmptyRulesPath() string {
	return l.FilePath(l.Root, EmptyRulesName)
}

// FilePath resolves a rule file name against folder.
func (l Layout) FilePath(folder, name string) string {
	return filepath.Join(folder, name+Ext)
}

// CategoryFiles returns the full paths of the rule files for ids, in order.
func (l Layout) CategoryFiles(ids []category.ID) []string {
	folder := l.CategoryFolder()
	paths := make([]string, 0, len(ids))
	for _, name := range FileNames(ids) {
		paths = append(paths, l.FilePath(folder, name))
	}
	return paths
}

// FileNames maps ids to rule file names, skipping invalid IDs.
func FileNames(ids []category.ID) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if n := category.FileName(id); n != "" {
			names = append(names, n)
		}
	}
	return names
}
