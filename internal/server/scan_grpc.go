package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Service and method names of invoices.v1.ScanService. The messages are
// well-known types, so no generated code is involved.
const (
	ScanServiceName          = "invoices.v1.ScanService"
	ScanService_StartScan    = "/invoices.v1.ScanService/StartScan"
	ScanService_LatestLog    = "/invoices.v1.ScanService/LatestLog"
	ScanService_RebuildSheet = "/invoices.v1.ScanService/RebuildSheet"
	ScanService_IngestPath   = "/invoices.v1.ScanService/IngestPath"
)

type ScanServiceServer interface {
	StartScan(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	LatestLog(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	RebuildSheet(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	IngestPath(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedScanServiceServer can be embedded for forward compatibility.
type UnimplementedScanServiceServer struct{}

func (UnimplementedScanServiceServer) StartScan(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method StartScan not implemented")
}
func (UnimplementedScanServiceServer) LatestLog(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method LatestLog not implemented")
}
func (UnimplementedScanServiceServer) RebuildSheet(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method RebuildSheet not implemented")
}
func (UnimplementedScanServiceServer) IngestPath(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method IngestPath not implemented")
}

func RegisterScanServiceServer(s grpc.ServiceRegistrar, srv ScanServiceServer) {
	s.RegisterService(&ScanService_ServiceDesc, srv)
}

func unaryHandler[Req any](method string, call func(ScanServiceServer, context.Context, *Req) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ScanServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ScanServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ScanService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ScanServiceName,
	HandlerType: (*ScanServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartScan", Handler: unaryHandler(ScanService_StartScan, ScanServiceServer.StartScan)},
		{MethodName: "LatestLog", Handler: unaryHandler(ScanService_LatestLog, ScanServiceServer.LatestLog)},
		{MethodName: "RebuildSheet", Handler: unaryHandler(ScanService_RebuildSheet, ScanServiceServer.RebuildSheet)},
		{MethodName: "IngestPath", Handler: unaryHandler(ScanService_IngestPath, ScanServiceServer.IngestPath)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "invoices/v1/scan.proto",
}

// ScanServiceClient is the client side of ScanService.
type ScanServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewScanServiceClient(cc grpc.ClientConnInterface) *ScanServiceClient {
	return &ScanServiceClient{cc: cc}
}

func (c *ScanServiceClient) StartScan(ctx context.Context, userID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ScanService_StartScan, wrapperspb.String(userID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ScanServiceClient) LatestLog(ctx context.Context, userID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ScanService_LatestLog, wrapperspb.String(userID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ScanServiceClient) RebuildSheet(ctx context.Context, userID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ScanService_RebuildSheet, wrapperspb.String(userID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ScanServiceClient) IngestPath(ctx context.Context, userID, path string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]interface{}{"user_id": userID, "path": path})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ScanService_IngestPath, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
