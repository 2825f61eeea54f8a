package coordinator

import (
	"context"

	"github.com/ChuLiYu/store-resolver/pkg/types"
	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// ServiceName is the gRPC service exposed by the coordinator.
	ServiceName = "storeresolver.coordinator.v1.Coordinator"
	// GetStoreMethod is the full method name of the store lookup.
	GetStoreMethod = "/" + ServiceName + "/GetStore"
)

// Field names of the GetStore response struct.
const (
	FieldID      = "id"
	FieldState   = "state"
	FieldAddress = "address"
)

// GrpcClient implements Client against a remote coordinator over gRPC.
// The request is a UInt64Value carrying the store id and the response is a
// Struct with id, state and address fields.
type GrpcClient struct {
	conn grpc.ClientConnInterface
}

// NewGrpcClient creates a GrpcClient.
// conn should be an established gRPC connection.
func NewGrpcClient(conn grpc.ClientConnInterface) *GrpcClient {
	return &GrpcClient{conn: conn}
}

// GetStore fetches the metadata of a store from the coordinator.
func (c *GrpcClient) GetStore(ctx context.Context, id types.StoreID) (*types.Store, error) {
	req := wrapperspb.UInt64(uint64(id))
	resp := &structpb.Struct{}

	if err := c.conn.Invoke(ctx, GetStoreMethod, req, resp); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.Wrapf(ErrStoreNotFound, "store %d", id)
		}
		return nil, errors.Wrapf(err, "rpc get store %d failed", id)
	}

	return StoreFromStruct(resp)
}

// StoreToStruct encodes a store record for the wire.
func StoreToStruct(s *types.Store) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldID:      structpb.NewStringValue(s.ID.String()),
		FieldState:   structpb.NewStringValue(string(s.State)),
		FieldAddress: structpb.NewStringValue(s.Address),
	}}
}

// StoreFromStruct decodes a store record received from the wire.
// The id is carried as a string because Struct numbers are float64.
func StoreFromStruct(st *structpb.Struct) (*types.Store, error) {
	fields := st.GetFields()

	id, err := types.ParseStoreID(fields[FieldID].GetStringValue())
	if err != nil {
		return nil, errors.Wrap(err, "decode store")
	}
	state, err := types.ParseStoreState(fields[FieldState].GetStringValue())
	if err != nil {
		return nil, errors.Wrapf(err, "decode store %d", id)
	}

	return &types.Store{
		ID:      id,
		State:   state,
		Address: fields[FieldAddress].GetStringValue(),
	}, nil
}
