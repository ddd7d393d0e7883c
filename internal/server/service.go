// Service descriptor and client for sectionquery.v1.QueryService.
// Messages are google.protobuf.Struct so the service needs no generated code.
package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "sectionquery.v1.QueryService"

// Full method names
const (
	MethodProcess            = "/" + ServiceName + "/Process"
	MethodProcessMany        = "/" + ServiceName + "/ProcessMany"
	MethodCompare            = "/" + ServiceName + "/Compare"
	MethodClearDocumentCache = "/" + ServiceName + "/ClearDocumentCache"
	MethodClearCaches        = "/" + ServiceName + "/ClearCaches"
	MethodStats              = "/" + ServiceName + "/Stats"
)

// QueryServiceServer is the server API for QueryService
type QueryServiceServer interface {
	Process(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ProcessMany(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Compare(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClearDocumentCache(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClearCaches(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stats(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterQueryServiceServer registers srv on s
func RegisterQueryServiceServer(s grpc.ServiceRegistrar, srv QueryServiceServer) {
	s.RegisterService(&QueryServiceDesc, srv)
}

type unaryCall func(QueryServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts a server method to grpc.MethodHandler, running the
// interceptor chain the way generated code does
func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(QueryServiceServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(s, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// QueryServiceDesc is the grpc.ServiceDesc for QueryService
var QueryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QueryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Process", Handler: unaryHandler(MethodProcess, QueryServiceServer.Process)},
		{MethodName: "ProcessMany", Handler: unaryHandler(MethodProcessMany, QueryServiceServer.ProcessMany)},
		{MethodName: "Compare", Handler: unaryHandler(MethodCompare, QueryServiceServer.Compare)},
		{MethodName: "ClearDocumentCache", Handler: unaryHandler(MethodClearDocumentCache, QueryServiceServer.ClearDocumentCache)},
		{MethodName: "ClearCaches", Handler: unaryHandler(MethodClearCaches, QueryServiceServer.ClearCaches)},
		{MethodName: "Stats", Handler: unaryHandler(MethodStats, QueryServiceServer.Stats)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sectionquery/v1/query.proto",
}

// QueryServiceClient is the client API for QueryService
type QueryServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewQueryServiceClient wraps a client connection
func NewQueryServiceClient(cc grpc.ClientConnInterface) *QueryServiceClient {
	return &QueryServiceClient{cc: cc}
}

func (c *QueryServiceClient) invoke(ctx context.Context, method string, in map[string]interface{}, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Process resolves one expression
func (c *QueryServiceClient) Process(ctx context.Context, docID, expression string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodProcess, map[string]interface{}{
		"document_id": docID,
		"expression":  expression,
	}, opts...)
}

// ProcessMany resolves a batch of expressions against one document
func (c *QueryServiceClient) ProcessMany(ctx context.Context, docID string, expressions []string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	list := make([]interface{}, len(expressions))
	for i, x := range expressions {
		list[i] = x
	}
	return c.invoke(ctx, MethodProcessMany, map[string]interface{}{
		"document_id": docID,
		"expressions": list,
	}, opts...)
}

// Compare measures full-document against section-only resolution
func (c *QueryServiceClient) Compare(ctx context.Context, docID, expression string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodCompare, map[string]interface{}{
		"document_id": docID,
		"expression":  expression,
	}, opts...)
}

// ClearDocumentCache drops cached entries for one document
func (c *QueryServiceClient) ClearDocumentCache(ctx context.Context, docID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodClearDocumentCache, map[string]interface{}{
		"document_id": docID,
	}, opts...)
}

// ClearCaches empties every cache
func (c *QueryServiceClient) ClearCaches(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodClearCaches, nil, opts...)
}

// Stats returns engine and server statistics
func (c *QueryServiceClient) Stats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodStats, nil, opts...)
}
