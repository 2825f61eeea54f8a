package server

import (
	"context"

	"github.com/ChuLiYu/store-resolver/internal/coordinator"
	"github.com/ChuLiYu/store-resolver/pkg/types"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Server implements the coordinator's GetStore RPC on top of any
// coordinator.Client, usually a coordinator.StaticClient.
type Server struct {
	source coordinator.Client
	logger *zap.Logger
}

// NewServer creates a new coordinator server instance.
func NewServer(source coordinator.Client, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{source: source, logger: logger}
}

// Register attaches the server to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv *Server) {
	s.RegisterService(&serviceDesc, srv)
}

// GetStore handles the GetStore RPC
func (s *Server) GetStore(ctx context.Context, req *wrapperspb.UInt64Value) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "missing store id")
	}
	id := types.StoreID(req.GetValue())

	store, err := s.source.GetStore(ctx, id)
	if err != nil {
		if errors.Is(err, coordinator.ErrStoreNotFound) {
			return nil, status.Errorf(codes.NotFound, "store %d not found", id)
		}
		s.logger.Warn("get store failed", zap.Uint64("store_id", uint64(id)), zap.Error(err))
		return nil, status.Errorf(codes.Unavailable, "get store %d: %v", id, err)
	}

	s.logger.Debug("get store", zap.Stringer("store", store))
	return coordinator.StoreToStruct(store), nil
}

// coordinatorServer is the handler type checked by grpc.RegisterService
type coordinatorServer interface {
	GetStore(context.Context, *wrapperspb.UInt64Value) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: coordinator.ServiceName,
	HandlerType: (*coordinatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStore",
			Handler:    getStoreHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

func getStoreHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.UInt64Value)
	if err := dec(in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if interceptor == nil {
		return srv.(coordinatorServer).GetStore(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: coordinator.GetStoreMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(coordinatorServer).GetStore(ctx, req.(*wrapperspb.UInt64Value))
	}
	return interceptor(ctx, in, info, handler)
}
