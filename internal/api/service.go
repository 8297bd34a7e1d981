package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pdm.v1.PDMEngine"

// PDMEngineServer is implemented by the service facade.
type PDMEngineServer interface {
	BuildFeatures(context.Context, *BuildFeaturesRequest) (*BuildFeaturesResponse, error)
	Analyze(context.Context, *AnalyzeRequest) (*AnalyzeResponse, error)
	ResolveSensors(context.Context, *ResolveSensorsRequest) (*ResolveSensorsResponse, error)
	Dispatch(context.Context, *DispatchRequest) (*DispatchResponse, error)
	HealthCheck(context.Context, *HealthRequest) (*HealthResponse, error)
}

// RegisterPDMEngineServer attaches srv to s.
func RegisterPDMEngineServer(s grpc.ServiceRegistrar, srv PDMEngineServer) {
	s.RegisterService(&pdmEngineServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(PDMEngineServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PDMEngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PDMEngineServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var pdmEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PDMEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "BuildFeatures", Handler: unaryHandler("BuildFeatures", PDMEngineServer.BuildFeatures)},
		{MethodName: "Analyze", Handler: unaryHandler("Analyze", PDMEngineServer.Analyze)},
		{MethodName: "ResolveSensors", Handler: unaryHandler("ResolveSensors", PDMEngineServer.ResolveSensors)},
		{MethodName: "Dispatch", Handler: unaryHandler("Dispatch", PDMEngineServer.Dispatch)},
		{MethodName: "HealthCheck", Handler: unaryHandler("HealthCheck", PDMEngineServer.HealthCheck)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pdm/v1/pdm.json",
}

// Client calls a remote PDMEngine over a connection using the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) BuildFeatures(ctx context.Context, in *BuildFeaturesRequest, opts ...grpc.CallOption) (*BuildFeaturesResponse, error) {
	return invoke[BuildFeaturesResponse](ctx, c.cc, "BuildFeatures", in, opts...)
}

func (c *Client) Analyze(ctx context.Context, in *AnalyzeRequest, opts ...grpc.CallOption) (*AnalyzeResponse, error) {
	return invoke[AnalyzeResponse](ctx, c.cc, "Analyze", in, opts...)
}

func (c *Client) ResolveSensors(ctx context.Context, in *ResolveSensorsRequest, opts ...grpc.CallOption) (*ResolveSensorsResponse, error) {
	return invoke[ResolveSensorsResponse](ctx, c.cc, "ResolveSensors", in, opts...)
}

func (c *Client) Dispatch(ctx context.Context, in *DispatchRequest, opts ...grpc.CallOption) (*DispatchResponse, error) {
	return invoke[DispatchResponse](ctx, c.cc, "Dispatch", in, opts...)
}

func (c *Client) HealthCheck(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error) {
	return invoke[HealthResponse](ctx, c.cc, "HealthCheck", in, opts...)
}
