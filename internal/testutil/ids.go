package testutil

// FixedIDGenerator generates the same resync ID every time.
//
// The same scenario with the same FixedIDGenerator produces identical
// reports, which keeps golden comparisons stable.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a new fixed ID generator.  If id is empty,
// Generate returns "test-resync".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-resync"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed ID.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
