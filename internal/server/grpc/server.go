// Package grpc exposes the pipeline to programmatic clients over gRPC.
package grpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ekisa-team/modma/internal/service"
	"github.com/ekisa-team/modma/mapsafe"
)

// envelopeBytes leaves room for the request fields around the encoded upload.
const envelopeBytes = 64 << 10

// Server serves the Classifier and health services.
type Server struct {
	grpcServer     *grpc.Server
	health         *health.Server
	pipeline       *service.Pipeline
	port           int
	maxUploadBytes int64
}

// New creates a server on port running uploads through pipeline. Requests
// may carry uploads of up to maxUploadBytes once base64 decoded; zero keeps
// the gRPC default message limit.
func New(port int, maxUploadBytes int64, pipeline *service.Pipeline) *Server {
	opts := []grpc.ServerOption{grpc.UnaryInterceptor(loggingInterceptor)}
	if maxUploadBytes > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(MaxMessageSize(maxUploadBytes)))
	}

	s := &Server{
		grpcServer:     grpc.NewServer(opts...),
		health:         health.NewServer(),
		pipeline:       pipeline,
		port:           port,
		maxUploadBytes: maxUploadBytes,
	}

	RegisterClassifierServer(s.grpcServer, s)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.SetServing(false)

	return s
}

// MaxMessageSize returns the receive limit for uploads of maxUploadBytes.
func MaxMessageSize(maxUploadBytes int64) int {
	m := min(maxUploadBytes, math.MaxInt32)
	n := (m+2)/3*4 + envelopeBytes

	return int(min(n, math.MaxInt32))
}

// SetServing reports the Classifier service as serving when models are loaded.
func (s *Server) SetServing(loaded bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if loaded {
		st = healthpb.HealthCheckResponse_SERVING
	}

	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// RunPipeline decodes the upload and runs it through the pipeline.
func (s *Server) RunPipeline(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()
	filename := mapsafe.Get(fields, "filename", "")
	runInfer := mapsafe.Get(fields, "run_infer", true)

	if err := service.CheckFileType(filename); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "Unsupported file type '%s'. Only .raw or .npz allowed.", filename)
	}

	data, err := base64.StdEncoding.DecodeString(mapsafe.Get(fields, "data", ""))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "data is not valid base64: %v", err)
	}
	if s.maxUploadBytes > 0 && int64(len(data)) > s.maxUploadBytes {
		return nil, status.Errorf(codes.ResourceExhausted, "upload of %d bytes exceeds the %d byte limit", len(data), s.maxUploadBytes)
	}

	res, err := s.pipeline.Run(ctx, filename, bytes.NewReader(data), runInfer)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, status.Error(codes.Canceled, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	out, err := toStruct(res.Body())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}

	return out, nil
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("gRPC server starting", "addr", lis.Addr().String())

	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}

	return nil
}

// Start listens on the configured port.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}

	return s.Serve(lis)
}

// Shutdown stops accepting requests and waits for in-flight calls until ctx ends.
func (s *Server) Shutdown(ctx context.Context) {
	slog.Info("gRPC server shutting down")
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

func toStruct(body any) (*structpb.Struct, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}

	return structpb.NewStruct(m)
}

func loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	code := status.Code(err)
	level := slog.LevelInfo
	if code != codes.OK {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "gRPC request", "method", info.FullMethod, "code", code.String(),
		"duration_ms", time.Since(start).Milliseconds())

	return resp, err
}
