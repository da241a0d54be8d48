package grpc

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	studioerrors "github.com/arkilian/studio/internal/errors"
	"github.com/arkilian/studio/internal/fetch"
)

// RequestIDKey is the metadata key carrying the caller's request ID.
const RequestIDKey = "x-request-id"

// Server serves a fetch.RowSource as the RowSource gRPC service.
type Server struct {
	source fetch.RowSource
	logger *zap.Logger
}

// NewServer creates a RowSource server reading from source.
func NewServer(source fetch.RowSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{source: source, logger: logger}
}

// Read handles RowSource.Read.
func (s *Server) Read(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)
	logger := s.logger.With(zap.String("request_id", requestID))

	d, err := DecodeReadRequest(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid read request: %v", err)
	}

	rows, err := s.source.Read(ctx, d)
	if err != nil {
		logger.Warn("read failed", zap.String("table", d.Table), zap.Error(err))
		return nil, toStatus(err)
	}

	resp, err := EncodeRows(rows)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode rows: %v", err)
	}
	logger.Debug("read served", zap.String("table", d.Table), zap.Int("rows", len(rows)))
	return resp, nil
}

// toStatus maps a source error onto a gRPC status.
func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, studioerrors.ErrTableNotFound):
		return status.Error(codes.NotFound, err.Error())
	case studioerrors.GetCategory(err) == studioerrors.ErrCategoryValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, studioerrors.ErrSourceUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// FromStatus maps a RowSource status back onto a studio error.
func FromStatus(table string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return studioerrors.NewSourceError(studioerrors.CodeSourceUnavailable, "row service call failed", err)
	}
	switch st.Code() {
	case codes.NotFound:
		return studioerrors.NewSourceError(studioerrors.CodeTableNotFound, st.Message(), err).
			WithDetails(map[string]interface{}{"table": table})
	case codes.InvalidArgument:
		return studioerrors.Wrap(studioerrors.ErrCategoryValidation, studioerrors.CodeInvalidBatch, st.Message(), err)
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	return studioerrors.NewSourceError(studioerrors.CodeSourceUnavailable, st.Message(), err)
}

// extractRequestID extracts or generates a request ID from the gRPC context.
func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(RequestIDKey); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}
