package source

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	rowgrpc "github.com/arkilian/studio/internal/api/grpc"
	studioerrors "github.com/arkilian/studio/internal/errors"
	"github.com/arkilian/studio/internal/fetch"
	"github.com/arkilian/studio/pkg/types"
)

// startRowService serves backend over an in-memory listener and returns a
// client source connected to it.
func startRowService(t *testing.T, backend fetch.RowSource) *GRPC {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	rowgrpc.RegisterRowSourceServer(srv, rowgrpc.NewServer(backend, nil))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewGRPC(conn)
}

func TestGRPC_RoundTrip(t *testing.T) {
	backend := NewMemory(map[string][]types.Row{"course": courseRows()})
	client := startRowService(t, backend)

	rows, err := client.Read(context.Background(), fetch.ReadDescriptor{
		Collection: "courses",
		Table:      "course",
		Fields:     []string{"id", "name", "tags"},
		ListFields: []string{"tags"},
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, types.Row{"id": float64(1), "name": "Intro to Go", "tags": []string{"go"}}, rows[0])
	assert.Equal(t, []string{"sql", "db"}, rows[1]["tags"])
}

func TestGRPC_ErrorMapping(t *testing.T) {
	client := startRowService(t, NewMemory(nil))

	_, err := client.Read(context.Background(), fetch.ReadDescriptor{Collection: "c", Table: "missing"})
	assert.ErrorIs(t, err, studioerrors.ErrTableNotFound)

	failing := fetch.SourceFunc(func(ctx context.Context, d fetch.ReadDescriptor) ([]types.Row, error) {
		return nil, studioerrors.NewSourceError(studioerrors.CodeSourceUnavailable, "disk gone", nil)
	})
	client = startRowService(t, failing)
	_, err = client.Read(context.Background(), fetch.ReadDescriptor{Collection: "c", Table: "course"})
	assert.ErrorIs(t, err, studioerrors.ErrSourceUnavailable)
	assert.True(t, studioerrors.IsRetryable(err))
}

func TestGRPC_FeedsOrchestrator(t *testing.T) {
	backend := NewMemory(map[string][]types.Row{
		"course":  courseRows(),
		"student": {{"name": "Ana"}},
	})
	o := fetch.New(startRowService(t, backend))

	p, err := o.Load(context.Background(), fetch.Batch{Name: "remote", Reads: []fetch.ReadDescriptor{
		{Collection: "courses", Table: "course"},
		{Collection: "students", Table: "student"},
		{Collection: "lessons", Table: "lesson"},
	}}, false)
	require.Error(t, err)
	assert.Contains(t, p.PartialErrors, "lessons")
	assert.ErrorIs(t, p.PartialErrors["lessons"], studioerrors.ErrTableNotFound)
	assert.Empty(t, p.Rows("courses"))
}
