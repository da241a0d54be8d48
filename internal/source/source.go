// Package source implements the row sources a fetch orchestrator reads from:
// in-memory tables, SQLite databases, JSON snapshots in object storage and a
// remote gRPC row service.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/arkilian/studio/internal/config"
	studioerrors "github.com/arkilian/studio/internal/errors"
	"github.com/arkilian/studio/internal/fetch"
	"github.com/arkilian/studio/internal/storage"
	"github.com/arkilian/studio/pkg/types"
)

// Source is a row source that holds resources until closed.
type Source interface {
	fetch.RowSource
	io.Closer
}

// Open builds the source described by cfg.
func Open(ctx context.Context, cfg config.SourceConfig, logger *zap.Logger) (Source, error) {
	switch cfg.Type {
	case config.SourceMemory:
		if cfg.Path == "" {
			return NewMemory(nil), nil
		}
		return LoadMemoryFile(cfg.Path)
	case config.SourceSQLite:
		return OpenSQLite(cfg.Path)
	case config.SourceLocal:
		store, err := storage.NewLocalStorage(cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewObject(store, cfg.Prefix, logger), nil
	case config.SourceS3:
		store, err := storage.NewS3Storage(ctx, cfg.S3.Bucket, storage.S3Config{
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, studioerrors.NewSourceError(studioerrors.CodeSourceUnavailable, "open s3 store", err)
		}
		return NewObject(store, cfg.Prefix, logger), nil
	case config.SourceGRPC:
		return DialGRPC(cfg.Target)
	}
	return nil, studioerrors.NewConfigError(studioerrors.CodeInvalidConfig,
		fmt.Sprintf("unknown source type %q", cfg.Type))
}

// Project applies a descriptor's field projection and row cap, decoding list
// fields stored as JSON text. The input rows are not modified.
func Project(rows []types.Row, d fetch.ReadDescriptor) []types.Row {
	n := len(rows)
	if d.Limit > 0 && d.Limit < n {
		n = d.Limit
	}
	out := make([]types.Row, n)
	for i := 0; i < n; i++ {
		row := rows[i].Project(d.Fields)
		for _, f := range d.ListFields {
			if v, ok := row[f]; ok {
				row[f] = decodeList(v)
			}
		}
		out[i] = row
	}
	return out
}

// decodeList turns JSON array text into a string list. Values that already
// are lists pass through; anything else becomes nil.
func decodeList(v any) any {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		return types.NormalizeValue(val)
	case string:
		var list []string
		if err := json.Unmarshal([]byte(val), &list); err != nil {
			return nil
		}
		return list
	}
	return nil
}

// decodeRows decodes a JSON array of objects into normalized rows.
func decodeRows(data []byte) ([]types.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	rows := make([]types.Row, len(raw))
	for i, m := range raw {
		rows[i] = types.NormalizeRow(m)
	}
	return rows, nil
}

// decodeTables decodes a JSON object of table name → array of rows.
func decodeTables(data []byte) (map[string][]types.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string][]map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	tables := make(map[string][]types.Row, len(raw))
	for name, records := range raw {
		rows := make([]types.Row, len(records))
		for i, m := range records {
			rows[i] = types.NormalizeRow(m)
		}
		tables[name] = rows
	}
	return tables, nil
}

func tableNotFound(table string) error {
	return studioerrors.Wrap(studioerrors.ErrCategorySource, studioerrors.CodeTableNotFound,
		fmt.Sprintf("table %q not found", table), nil).
		WithDetails(map[string]interface{}{"table": table})
}
