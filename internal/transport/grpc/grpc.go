// Package grpc implements the gRPC transport for htsbridge.
//
// The Synthesizer service carries utterance.Request and utterance.Result
// messages with a JSON codec (content-subtype "json"), so clients need no
// generated stubs: any gRPC client that sets the subtype can call
// /htsbridge.v1.Synthesizer/Synthesize. The standard health service is
// registered alongside it.
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/nadzzz/htsbridge/internal/transport"
	"github.com/nadzzz/htsbridge/internal/utterance"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "htsbridge.v1.Synthesizer"

const (
	synthesizeMethod = "/" + ServiceName + "/Synthesize"
	streamMethod     = "/" + ServiceName + "/SynthesizeStream"
)

// codec marshals messages as JSON.
type codec struct{}

func (codec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (codec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(codec{})
}

// service adapts a transport.Handler to the Synthesizer service.
type service interface {
	synthesize(ctx context.Context, req *utterance.Request) (*utterance.Result, error)
}

type handlerService struct {
	handler transport.Handler
}

func (s handlerService) synthesize(ctx context.Context, req *utterance.Request) (*utterance.Result, error) {
	res, err := s.handler(ctx, req)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return res, nil
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*service)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Synthesize", Handler: synthesizeHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "SynthesizeStream", Handler: synthesizeStreamHandler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "htsbridge/v1/synthesizer",
}

func synthesizeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(utterance.Request)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(service).synthesize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: synthesizeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(service).synthesize(ctx, req.(*utterance.Request))
	}
	return interceptor(ctx, in, info, handler)
}

// synthesizeStreamHandler answers each request on the stream in order.
func synthesizeStreamHandler(srv any, stream grpc.ServerStream) error {
	for {
		in := new(utterance.Request)
		if err := stream.RecvMsg(in); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		res, err := srv.(service).synthesize(stream.Context(), in)
		if err != nil {
			res = &utterance.Result{RequestID: in.ID, Error: status.Convert(err).Message()}
		}
		if err := stream.SendMsg(res); err != nil {
			return err
		}
	}
}

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port   int
	server *grpc.Server
	health *health.Server
}

// New creates a new gRPC transport on the given port.
func New(port int) *Transport {
	return &Transport{port: port}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// Listen starts the gRPC server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return t.Serve(ctx, lis, handler)
}

// Serve runs the gRPC server on an existing listener.
func (t *Transport) Serve(ctx context.Context, lis net.Listener, handler transport.Handler) error {
	t.server = grpc.NewServer()
	t.server.RegisterService(&serviceDesc, handlerService{handler: handler})

	t.health = health.NewServer()
	t.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(t.server, t.health)

	slog.Info("grpc transport listening", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		t.health.Shutdown()
		t.server.GracefulStop()
	}()

	if err := t.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}

// Client calls a remote Synthesizer service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Synthesize sends one request.
func (c *Client) Synthesize(ctx context.Context, req *utterance.Request, opts ...grpc.CallOption) (*utterance.Result, error) {
	out := new(utterance.Result)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype("json")}, opts...)
	if err := c.cc.Invoke(ctx, synthesizeMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Stream opens a bidirectional request stream.
func (c *Client) Stream(ctx context.Context, opts ...grpc.CallOption) (*Stream, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype("json")}, opts...)
	cs, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], streamMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &Stream{cs: cs}, nil
}

// Stream is an open SynthesizeStream call.
type Stream struct {
	cs grpc.ClientStream
}

// Send queues one request.
func (s *Stream) Send(req *utterance.Request) error { return s.cs.SendMsg(req) }

// Recv waits for the next result.
func (s *Stream) Recv() (*utterance.Result, error) {
	out := new(utterance.Result)
	if err := s.cs.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}

// CloseSend ends the request side of the stream.
func (s *Stream) CloseSend() error { return s.cs.CloseSend() }
