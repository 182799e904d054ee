// Package grpc exposes the hashing and discard pipeline over gRPC. Messages
// are google.protobuf.Struct values so clients need no generated stubs.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "eventhash.v1.HashService"

const (
	methodComputeHashes     = "/" + ServiceName + "/ComputeHashes"
	methodMatchesDiscard    = "/" + ServiceName + "/MatchesDiscard"
	methodRegisterTombstone = "/" + ServiceName + "/RegisterTombstone"
	methodIngest            = "/" + ServiceName + "/Ingest"
)

// HashServiceServer is the server API for HashService.
type HashServiceServer interface {
	ComputeHashes(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MatchesDiscard(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RegisterTombstone(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Ingest(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterHashServiceServer registers srv on s.
func RegisterHashServiceServer(s grpc.ServiceRegistrar, srv HashServiceServer) {
	s.RegisterService(&HashServiceDesc, srv)
}

type unaryMethod func(HashServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(HashServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(HashServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// HashServiceDesc describes HashService for grpc.Server.RegisterService.
var HashServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*HashServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ComputeHashes", Handler: unaryHandler(methodComputeHashes, HashServiceServer.ComputeHashes)},
		{MethodName: "MatchesDiscard", Handler: unaryHandler(methodMatchesDiscard, HashServiceServer.MatchesDiscard)},
		{MethodName: "RegisterTombstone", Handler: unaryHandler(methodRegisterTombstone, HashServiceServer.RegisterTombstone)},
		{MethodName: "Ingest", Handler: unaryHandler(methodIngest, HashServiceServer.Ingest)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "eventhash/v1/hash_service.proto",
}

// HashServiceClient is a thin client for HashService.
type HashServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewHashServiceClient wraps a client connection.
func NewHashServiceClient(cc grpc.ClientConnInterface) *HashServiceClient {
	return &HashServiceClient{cc: cc}
}

func (c *HashServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HashServiceClient) ComputeHashes(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodComputeHashes, in, opts...)
}

func (c *HashServiceClient) MatchesDiscard(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodMatchesDiscard, in, opts...)
}

func (c *HashServiceClient) RegisterTombstone(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodRegisterTombstone, in, opts...)
}

func (c *HashServiceClient) Ingest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodIngest, in, opts...)
}
