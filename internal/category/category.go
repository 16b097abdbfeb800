// Package category defines the closed set of tracker categories and the rule
// file each one maps to.
package category

import (
	"fmt"
	"strings"
)

// ID identifies a tracker category.
type ID int

const (
	Advertising ID = iota
	AdultAdvertising
	Analytics
	AudioVideoPlayer
	Comments
	CustomerInteraction
	Essential
	Social

	// numIDs must stay last.
	numIDs
)

// fileNames maps every ID to its rule file name (without the .json
// extension).  The assignment to a [numIDs]string below fails to compile
// when an ID is added without a file name.
var fileNames = [...]string{
	Advertising:         "advertising",
	AdultAdvertising:    "adult_advertising",
	Analytics:           "site_analytics",
	AudioVideoPlayer:    "audio_video_player",
	Comments:            "comments",
	CustomerInteraction: "customer_interaction",
	Essential:           "essential",
	Social:              "social_media",
}

var _ [numIDs]string = fileNames

// names are the stable wire names used in persisted configuration and on the
// command line.
var names = [...]string{
	Advertising:         "advertising",
	AdultAdvertising:    "adult_advertising",
	Analytics:           "analytics",
	AudioVideoPlayer:    "audio_video_player",
	Comments:            "comments",
	CustomerInteraction: "customer_interaction",
	Essential:           "essential",
	Social:              "social",
}

var _ [numIDs]string = names

// defaultSet is the category set used in the default filtering mode.
var defaultSet = []ID{Advertising, AdultAdvertising, Analytics}

// Valid reports whether id belongs to the enumeration.
func (id ID) Valid() bool {
	return id >= 0 && id < numIDs
}

// String returns the wire name of id.
func (id ID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("category(%d)", int(id))
	}
	return names[id]
}

// FileName returns the rule file name for id, without extension.
func FileName(id ID) string {
	if !id.Valid() {
		return ""
	}
	return fileNames[id]
}

// Parse returns the ID whose wire name equals name, case-insensitively.
func Parse(name string) (ID, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range names {
		if s == n {
			return ID(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", name)
}

// ParseAll parses every name and fails on the first unknown one.
func ParseAll(list []string) ([]ID, error) {
	ids := make([]ID, 0, len(list))
	for _, name := range list {
		id, err := Parse(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// All returns every category in declaration order.
func All() []ID {
	ids := make([]ID, numIDs)
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}

// Names returns the wire names of all categories in declaration order.
func Names() []string {
	out := make([]string, len(names))
	copy(out, names[:])
	return out
}

// Default returns a copy of the default category set.
func Default() []ID {
	out := make([]ID, len(defaultSet))
	copy(out, defaultSet)
	return out
}

// Dedup removes repeated and invalid IDs, keeping the first occurrence of each.
func Dedup(ids []ID) []ID {
	var seen [numIDs]bool
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if !id.Valid() || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Strings returns the wire names for ids.
func Strings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
