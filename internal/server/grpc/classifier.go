package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "modma.v1.Classifier"

const runPipelineMethod = "/" + ServiceName + "/RunPipeline"

// ClassifierServer is the server API for the Classifier service.
type ClassifierServer interface {
	RunPipeline(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterClassifierServer registers srv on s.
func RegisterClassifierServer(s grpc.ServiceRegistrar, srv ClassifierServer) {
	s.RegisterService(&classifierServiceDesc, srv)
}

var classifierServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ClassifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunPipeline", Handler: runPipelineHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "modma/v1/classifier.proto",
}

func runPipelineHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClassifierServer).RunPipeline(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: runPipelineMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClassifierServer).RunPipeline(ctx, req.(*structpb.Struct))
	}

	return interceptor(ctx, in, info, handler)
}

// ClassifierClient calls the Classifier service.
type ClassifierClient struct {
	cc grpc.ClientConnInterface
}

// NewClassifierClient creates a client on cc.
func NewClassifierClient(cc grpc.ClientConnInterface) *ClassifierClient {
	return &ClassifierClient{cc: cc}
}

// RunPipeline uploads a recording and returns the pipeline response.
func (c *ClassifierClient) RunPipeline(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, runPipelineMethod, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}
