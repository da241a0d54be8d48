package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/golang/snappy"
	"go.uber.org/zap"

	studioerrors "github.com/arkilian/studio/internal/errors"
	"github.com/arkilian/studio/internal/fetch"
	"github.com/arkilian/studio/internal/storage"
	"github.com/arkilian/studio/pkg/types"
)

const (
	snapshotExt           = ".json"
	compressedSnapshotExt = ".json.sz"
)

// Object reads table snapshots from an object store. A table is stored as a
// JSON array of rows at <prefix><table>.json.sz (snappy block-compressed) or
// <prefix><table>.json.
type Object struct {
	store  storage.ObjectStore
	prefix string
	logger *zap.Logger
}

// NewObject creates an object source over store.
func NewObject(store storage.ObjectStore, prefix string, logger *zap.Logger) *Object {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Object{store: store, prefix: prefix, logger: logger}
}

// Read loads the table's snapshot, preferring the compressed object.
func (o *Object) Read(ctx context.Context, d fetch.ReadDescriptor) ([]types.Row, error) {
	if !validObjectTable(d.Table) {
		return nil, studioerrors.NewValidationError(studioerrors.CodeInvalidBatch,
			fmt.Sprintf("invalid table name %q", d.Table))
	}
	key := o.key(d.Table, compressedSnapshotExt)
	data, err := o.store.Get(ctx, key)
	compressed := true
	if errors.Is(err, storage.ErrObjectNotFound) {
		key = o.key(d.Table, snapshotExt)
		data, err = o.store.Get(ctx, key)
		compressed = false
	}
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, tableNotFound(d.Table)
		}
		return nil, studioerrors.NewSourceError(studioerrors.CodeSourceUnavailable,
			fmt.Sprintf("get snapshot %s", key), err)
	}

	if compressed {
		data, err = snappy.Decode(nil, data)
		if err != nil {
			return nil, studioerrors.NewSourceError(studioerrors.CodeDecodeFailed,
				fmt.Sprintf("decompress snapshot %s", key), err)
		}
	}

	rows, err := decodeRows(data)
	if err != nil {
		return nil, studioerrors.NewSourceError(studioerrors.CodeDecodeFailed,
			fmt.Sprintf("decode snapshot %s", key), err)
	}
	o.logger.Debug("snapshot read",
		zap.String("key", key),
		zap.Int("rows", len(rows)),
		zap.Bool("compressed", compressed))
	return Project(rows, d), nil
}

// Tables lists the tables that have a snapshot under the prefix.
func (o *Object) Tables(ctx context.Context) ([]string, error) {
	keys, err := o.store.List(ctx, o.prefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, k := range keys {
		name := strings.TrimPrefix(k, o.prefix)
		switch {
		case strings.HasSuffix(name, compressedSnapshotExt):
			name = strings.TrimSuffix(name, compressedSnapshotExt)
		case strings.HasSuffix(name, snapshotExt):
			name = strings.TrimSuffix(name, snapshotExt)
		default:
			continue
		}
		if name != "" && path.Base(name) == name {
			seen[name] = true
		}
	}
	tables := make([]string, 0, len(seen))
	for name := range seen {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables, nil
}

// WriteSnapshot stores rows as the compressed snapshot of table.
func (o *Object) WriteSnapshot(ctx context.Context, table string, rows []types.Row) error {
	return WriteSnapshot(ctx, o.store, o.prefix, table, rows)
}

// WriteSnapshot encodes rows as JSON, compresses them and stores them at
// <prefix><table>.json.sz.
func WriteSnapshot(ctx context.Context, store storage.ObjectStore, prefix, table string, rows []types.Row) error {
	if rows == nil {
		rows = []types.Row{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return studioerrors.NewInternalError(fmt.Sprintf("encode snapshot of %q", table), err)
	}
	if !validObjectTable(table) {
		return studioerrors.NewValidationError(studioerrors.CodeInvalidBatch,
			fmt.Sprintf("invalid table name %q", table))
	}
	key := prefix + table + compressedSnapshotExt
	if err := store.Put(ctx, key, snappy.Encode(nil, data)); err != nil {
		return studioerrors.NewSourceError(studioerrors.CodeSourceUnavailable,
			fmt.Sprintf("put snapshot %s", key), err)
	}
	return nil
}

func (o *Object) key(table, ext string) string {
	return o.prefix + table + ext
}

// validObjectTable rejects table names that would address objects outside
// the prefix.
func validObjectTable(table string) bool {
	return table != "" && path.Clean(table) == table &&
		!strings.HasPrefix(table, "/") && !strings.HasPrefix(table, "..")
}

// Close is a no-op.
func (o *Object) Close() error { return nil }
