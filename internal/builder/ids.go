package builder

import (
	"fmt"

	"github.com/scrapegoat/backend/internal/shared/id"
	"github.com/scrapegoat/backend/internal/tree"
)

// ID schemes understood by NewIDSource.
const (
	SchemeULID     = "ulid"
	SchemeSequence = "sequence"
)

// NewIDSource returns a fresh ID source for scheme. Sequence IDs are only
// unique within one source; ULIDs are unique across processes.
func NewIDSource(scheme string) (tree.IDSource, error) {
	switch scheme {
	case SchemeULID, "":
		return id.NewGenerator(), nil
	case SchemeSequence:
		return tree.NewSequence("node"), nil
	default:
		return nil, fmt.Errorf("builder: unknown id scheme %q", scheme)
	}
}
