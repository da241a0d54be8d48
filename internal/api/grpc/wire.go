// Package grpc serves and describes the studio.v1.RowSource service, which
// exposes any row source over gRPC. Messages are google.protobuf.Struct
// values, so the service needs no generated code.
package grpc

import (
	"context"
	"fmt"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/arkilian/studio/internal/fetch"
	"github.com/arkilian/studio/pkg/types"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "studio.v1.RowSource"
	// ReadMethod is the full method name of RowSource.Read.
	ReadMethod = "/" + ServiceName + "/Read"
)

// RowSourceServer is the server API for the RowSource service.
type RowSourceServer interface {
	Read(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RowSourceServiceDesc describes the RowSource service for registration.
var RowSourceServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RowSourceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Read", Handler: readHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "studio/v1/row_source.proto",
}

// RegisterRowSourceServer registers srv on s.
func RegisterRowSourceServer(s grpc.ServiceRegistrar, srv RowSourceServer) {
	s.RegisterService(&RowSourceServiceDesc, srv)
}

func readHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RowSourceServer).Read(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ReadMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RowSourceServer).Read(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// EncodeReadRequest encodes a read descriptor as a request message.
func EncodeReadRequest(d fetch.ReadDescriptor) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"collection":  d.Collection,
		"table":       d.Table,
		"fields":      stringsToList(d.Fields),
		"list_fields": stringsToList(d.ListFields),
		"limit":       d.Limit,
	})
}

// DecodeReadRequest decodes a request message into a read descriptor.
func DecodeReadRequest(req *structpb.Struct) (fetch.ReadDescriptor, error) {
	var d fetch.ReadDescriptor
	if req == nil {
		return d, fmt.Errorf("empty request")
	}
	m := req.AsMap()

	table, _ := m["table"].(string)
	if table == "" {
		return d, fmt.Errorf("table is required")
	}
	d.Table = table
	d.Collection, _ = m["collection"].(string)

	var ok bool
	if d.Fields, ok = listToStrings(m["fields"]); !ok {
		return d, fmt.Errorf("fields must be a list of strings")
	}
	if d.ListFields, ok = listToStrings(m["list_fields"]); !ok {
		return d, fmt.Errorf("list_fields must be a list of strings")
	}
	if raw, present := m["limit"]; present && raw != nil {
		limit, ok := raw.(float64)
		if !ok {
			return d, fmt.Errorf("limit must be a number")
		}
		if math.IsNaN(limit) || math.IsInf(limit, 0) || limit != math.Trunc(limit) {
			return d, fmt.Errorf("limit must be a whole number")
		}
		if limit < 0 || limit > math.MaxInt32 {
			return d, fmt.Errorf("limit must be between 0 and %d", math.MaxInt32)
		}
		d.Limit = int(limit)
	}
	return d, nil
}

// EncodeRows encodes rows as a response message {"rows": [...]}.
func EncodeRows(rows []types.Row) (*structpb.Struct, error) {
	list := make([]interface{}, len(rows))
	for i, row := range rows {
		m := make(map[string]interface{}, len(row))
		for k, v := range row {
			m[k] = wireValue(v)
		}
		list[i] = m
	}
	return structpb.NewStruct(map[string]interface{}{"rows": list})
}

// DecodeRows decodes a response message into normalized rows.
func DecodeRows(resp *structpb.Struct) ([]types.Row, error) {
	if resp == nil {
		return []types.Row{}, nil
	}
	raw, ok := resp.AsMap()["rows"]
	if !ok || raw == nil {
		return []types.Row{}, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("rows must be a list")
	}
	rows := make([]types.Row, len(list))
	for i, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("row %d is not an object", i)
		}
		rows[i] = types.NormalizeRow(m)
	}
	return rows, nil
}

// wireValue converts a row value into a form structpb accepts.
func wireValue(v any) interface{} {
	switch val := v.(type) {
	case []string:
		return stringsToList(val)
	case []any:
		if list, ok := types.AsStrings(val); ok {
			return stringsToList(list)
		}
		return nil
	}
	if f, ok := types.AsNumber(v); ok {
		return f
	}
	switch v.(type) {
	case nil, string, bool:
		return v
	}
	return nil
}

func stringsToList(items []string) []interface{} {
	list := make([]interface{}, len(items))
	for i, s := range items {
		list[i] = s
	}
	return list
}

func listToStrings(v interface{}) ([]string, bool) {
	if v == nil {
		return nil, true
	}
	list, ok := types.AsStrings(v)
	if !ok {
		return nil, false
	}
	if len(list) == 0 {
		return nil, true
	}
	return list, true
}
