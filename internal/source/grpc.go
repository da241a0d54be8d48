package source

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	rowgrpc "github.com/arkilian/studio/internal/api/grpc"
	studioerrors "github.com/arkilian/studio/internal/errors"
	"github.com/arkilian/studio/internal/fetch"
	"github.com/arkilian/studio/pkg/types"
)

// GRPC reads rows from a remote RowSource service.
type GRPC struct {
	conn  *grpc.ClientConn
	owned bool
}

// DialGRPC connects to the RowSource service at target without TLS.
func DialGRPC(target string, opts ...grpc.DialOption) (*GRPC, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, studioerrors.NewSourceError(studioerrors.CodeSourceUnavailable,
			fmt.Sprintf("dial row service %s", target), err)
	}
	return &GRPC{conn: conn, owned: true}, nil
}

// NewGRPC uses an existing connection; Close leaves it open.
func NewGRPC(conn *grpc.ClientConn) *GRPC {
	return &GRPC{conn: conn}
}

// Read calls RowSource.Read.
func (g *GRPC) Read(ctx context.Context, d fetch.ReadDescriptor) ([]types.Row, error) {
	req, err := rowgrpc.EncodeReadRequest(d)
	if err != nil {
		return nil, studioerrors.NewInternalError("encode read request", err)
	}

	resp := new(structpb.Struct)
	if err := g.conn.Invoke(ctx, rowgrpc.ReadMethod, req, resp); err != nil {
		return nil, rowgrpc.FromStatus(d.Table, err)
	}

	rows, err := rowgrpc.DecodeRows(resp)
	if err != nil {
		return nil, studioerrors.NewSourceError(studioerrors.CodeDecodeFailed,
			fmt.Sprintf("decode rows of %q", d.Table), err)
	}
	return rows, nil
}

// Close closes the connection if this source dialed it.
func (g *GRPC) Close() error {
	if !g.owned {
		return nil
	}
	return g.conn.Close()
}
