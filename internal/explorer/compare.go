package explorer

import (
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/arkilian/studio/pkg/types"
)

// comparator orders row values for sorting.
// A collate.Collator keeps internal buffers, so a comparator belongs to one
// engine and must not be shared across goroutines.
type comparator struct {
	coll *collate.Collator
}

func newComparator() *comparator {
	return &comparator{
		coll: collate.New(language.Und, collate.IgnoreCase),
	}
}

// compare returns -1, 0 or 1. Two numeric values compare numerically;
// anything else compares by display string, case-insensitively.
func (c *comparator) compare(a, b any) int {
	if fa, ok := types.AsNumber(a); ok {
		if fb, ok := types.AsNumber(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return c.coll.CompareString(types.Display(a), types.Display(b))
}
