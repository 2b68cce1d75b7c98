// Package grpcapi exposes the prediction pipeline over gRPC.
//
// The service geostorm.v1.Predictor has one unary method, Predict, whose
// request and response are google.protobuf.Struct values carrying the same
// JSON shapes as the HTTP API:
//
//	request:  {"speed": 400, "bt": 2, "temperature": 50000, "bz_gsm": 1, "density": 5}
//	response: {"prediction": 3.5, "classification": "Quiet", "effects": "No disturbance"}
//
// Only well-known types are used, so the service descriptor is declared by
// hand and clients need no generated code.
package grpcapi

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HatiCode/geostorm/pkg/features"
	"github.com/HatiCode/geostorm/pkg/inference"
	"github.com/HatiCode/geostorm/pkg/pipeline"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "geostorm.v1.Predictor"

// PredictMethod is the full method path of Predict.
const PredictMethod = "/" + ServiceName + "/Predict"

// PredictorServer is the server API for geostorm.v1.Predictor.
type PredictorServer interface {
	Predict(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes geostorm.v1.Predictor for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PredictorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: predictHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "geostorm/v1/predictor.proto",
}

func predictHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PredictorServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PredictMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PredictorServer).Predict(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Service implements PredictorServer on top of a pipeline.
type Service struct {
	pipeline *pipeline.Pipeline
}

// NewService creates a Service.
func NewService(p *pipeline.Pipeline) *Service {
	return &Service{pipeline: p}
}

// Predict runs a single record through the pipeline.
func (s *Service) Predict(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "request must be a struct")
	}

	res, err := s.pipeline.Run(ctx, features.Record(in.AsMap()))
	if err != nil {
		return nil, toStatus(err)
	}

	out, err := structpb.NewStruct(map[string]any{
		"prediction":     res.Prediction,
		"classification": string(res.Classification),
		"effects":        res.Effects,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return out, nil
}

// toStatus maps pipeline errors to gRPC status codes. Internal details are
// not sent to the client.
func toStatus(err error) error {
	switch {
	case errors.Is(err, features.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, inference.ErrModelUnavailable):
		return status.Error(codes.Unavailable, "model unavailable")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}

// Client calls geostorm.v1.Predictor.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Predict sends one record and returns the decoded response fields.
func (c *Client) Predict(ctx context.Context, rec map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	in, err := structpb.NewStruct(rec)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PredictMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
