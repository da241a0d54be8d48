package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/studio/internal/config"
	studioerrors "github.com/arkilian/studio/internal/errors"
	"github.com/arkilian/studio/internal/fetch"
	"github.com/arkilian/studio/pkg/types"
)

func TestProject(t *testing.T) {
	rows := []types.Row{
		{"a": 1, "b": "x", "l": `["p"]`},
		{"a": 2, "l": []any{"q", "r"}},
		{"a": 3, "l": 7},
	}

	out := Project(rows, fetch.ReadDescriptor{Fields: []string{"a", "l"}, ListFields: []string{"l"}})
	require.Len(t, out, 3)
	assert.Equal(t, types.Row{"a": 1, "l": []string{"p"}}, out[0])
	assert.Equal(t, []string{"q", "r"}, out[1]["l"])
	assert.Nil(t, out[2]["l"])
	assert.Equal(t, `["p"]`, rows[0]["l"], "input rows must not change")

	assert.Len(t, Project(rows, fetch.ReadDescriptor{Limit: 1}), 1)
	assert.Len(t, Project(rows, fetch.ReadDescriptor{Limit: 10}), 3)
	assert.NotNil(t, Project(nil, fetch.ReadDescriptor{}))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	mem, err := Open(ctx, config.SourceConfig{Type: config.SourceMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, mem)

	local, err := Open(ctx, config.SourceConfig{Type: config.SourceLocal, Path: t.TempDir(), Prefix: "snap/"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Object{}, local)

	sqlite, err := Open(ctx, config.SourceConfig{Type: config.SourceSQLite, Path: seedSQLite(t)}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, sqlite)
	assert.NoError(t, sqlite.Close())

	remote, err := Open(ctx, config.SourceConfig{Type: config.SourceGRPC, Target: "localhost:0"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &GRPC{}, remote)
	assert.NoError(t, remote.Close())

	_, err = Open(ctx, config.SourceConfig{Type: "ftp"}, nil)
	assert.Equal(t, studioerrors.ErrCategoryConfig, studioerrors.GetCategory(err))
}
