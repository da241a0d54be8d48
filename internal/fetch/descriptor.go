package fetch

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spaolacci/murmur3"

	studioerrors "github.com/arkilian/studio/internal/errors"
)

// ReadDescriptor names one read in a batch: the collection it fills, the
// table it reads, an optional field projection and an optional row cap.
type ReadDescriptor struct {
	Collection string   `json:"collection" yaml:"collection"`
	Table      string   `json:"table" yaml:"table"`
	Fields     []string `json:"fields,omitempty" yaml:"fields,omitempty"`
	// ListFields are fields a source stores as encoded text but which carry
	// string lists (for example JSON arrays in a SQLite TEXT column).
	ListFields []string `json:"list_fields,omitempty" yaml:"list_fields,omitempty"`
	Limit      int      `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// Batch is a fixed set of independent reads issued together.
type Batch struct {
	Name  string           `json:"name"`
	Reads []ReadDescriptor `json:"reads"`
}

// Validate checks that the batch has reads, each with a table and a unique,
// non-empty collection name.
func (b Batch) Validate() error {
	if len(b.Reads) == 0 {
		return studioerrors.NewValidationError(studioerrors.CodeInvalidBatch,
			fmt.Sprintf("batch %q has no reads", b.Name))
	}
	seen := make(map[string]bool, len(b.Reads))
	for i, r := range b.Reads {
		if r.Collection == "" {
			return studioerrors.NewValidationError(studioerrors.CodeInvalidBatch,
				fmt.Sprintf("batch %q: read %d has no collection name", b.Name, i))
		}
		if seen[r.Collection] {
			return studioerrors.NewValidationError(studioerrors.CodeInvalidBatch,
				fmt.Sprintf("batch %q: duplicate collection %q", b.Name, r.Collection))
		}
		seen[r.Collection] = true
		if r.Table == "" {
			return studioerrors.NewValidationError(studioerrors.CodeInvalidBatch,
				fmt.Sprintf("batch %q: collection %q has no table", b.Name, r.Collection))
		}
		if r.Limit < 0 {
			return studioerrors.NewValidationError(studioerrors.CodeInvalidBatch,
				fmt.Sprintf("batch %q: collection %q has a negative limit", b.Name, r.Collection))
		}
	}
	return nil
}

// Collections returns the collection names in read order.
func (b Batch) Collections() []string {
	out := make([]string, len(b.Reads))
	for i, r := range b.Reads {
		out[i] = r.Collection
	}
	return out
}

// Read returns the descriptor filling the named collection.
func (b Batch) Read(collection string) (ReadDescriptor, bool) {
	for _, r := range b.Reads {
		if r.Collection == collection {
			return r, true
		}
	}
	return ReadDescriptor{}, false
}

// Fingerprint hashes the batch's reads into a cache key. The batch name and
// the order of reads and fields do not contribute.
func (b Batch) Fingerprint() uint64 {
	reads := make([]ReadDescriptor, len(b.Reads))
	copy(reads, b.Reads)
	sort.Slice(reads, func(i, j int) bool { return reads[i].Collection < reads[j].Collection })

	h := murmur3.New128()
	buf := make([]byte, 0, 256)
	for _, r := range reads {
		buf = buf[:0]
		buf = appendField(buf, r.Collection)
		buf = appendField(buf, r.Table)
		buf = appendList(buf, r.Fields)
		buf = appendList(buf, r.ListFields)
		buf = strconv.AppendInt(buf, int64(r.Limit), 10)
		buf = append(buf, 0x1e)
		h.Write(buf)
	}
	h1, h2 := h.Sum128()
	return h1 ^ h2
}

// appendField writes a length-prefixed string so separators inside names
// cannot produce collisions.
func appendField(buf []byte, s string) []byte {
	buf = strconv.AppendInt(buf, int64(len(s)), 10)
	buf = append(buf, ':')
	return append(buf, s...)
}

func appendList(buf []byte, items []string) []byte {
	sorted := make([]string, len(items))
	copy(sorted, items)
	sort.Strings(sorted)
	buf = strconv.AppendInt(buf, int64(len(sorted)), 10)
	buf = append(buf, '[')
	for _, s := range sorted {
		buf = appendField(buf, s)
	}
	return append(buf, ']')
}
