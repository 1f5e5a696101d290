package routing

import (
	"context"
	"io"

	"google.golang.org/grpc"
)

// ErrorCode is the closed enumeration routing responses carry.
type ErrorCode int32

const (
	ErrorCodeSuccess ErrorCode = iota
	ErrorCodeInvalidRequest
	ErrorCodeServiceUnavailable
	ErrorCodeInternal
)

// RouteRequest is the wire request for RouteMessage and
// BatchRouteMessages.
type RouteRequest struct {
	MessageID     string `json:"message_id"`
	TargetService string `json:"target_service"`
	Payload       []byte `json:"payload"`
	Priority      int    `json:"priority"`
}

// RouteResponse is the wire response. It reports whether routing
// succeeded, not whether downstream processing did.
type RouteResponse struct {
	MessageID    string    `json:"message_id"`
	ErrorCode    ErrorCode `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
	Accepted     bool      `json:"accepted"`
}

// StatusResponse is CheckStatus's response: healthy flag, current
// queue depth, uptime.
type StatusResponse struct {
	Healthy       bool    `json:"healthy"`
	QueueDepth    int     `json:"queue_depth"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Empty is CheckStatus's request type.
type Empty struct{}

// routeMessageHandler adapts RoutingService.RouteMessage to grpc's
// unary method-handler signature.
func routeMessageHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(RouteRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*RoutingService).RouteMessage(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/routing.RoutingService/RouteMessage"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*RoutingService).RouteMessage(ctx, req.(*RouteRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// StatusServer is implemented by anything that can answer CheckStatus -
// the routing service itself, and (for health-probing purposes) every
// downstream ServiceInstance process.
type StatusServer interface {
	CheckStatus(ctx context.Context, req *Empty) (*StatusResponse, error)
}

func checkStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(Empty)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServer).CheckStatus(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/routing.RoutingService/CheckStatus"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatusServer).CheckStatus(ctx, req.(*Empty))
	}
	return interceptor(ctx, req, info, handler)
}

// HealthServiceDesc is a minimal single-method gRPC service any
// downstream ServiceInstance process registers so the routing
// service's health prober has a real endpoint to call - CheckStatus
// only, not the full RoutingService surface.
var HealthServiceDesc = grpc.ServiceDesc{
	ServiceName: "routing.HealthService",
	HandlerType: (*StatusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckStatus", Handler: checkStatusHandler},
	},
	Metadata: "routing/proto/routing.proto",
}

// batchRouteMessagesHandler adapts BatchRouteMessages to grpc's
// bidi-streaming handler signature: read requests until EOF, send one
// response per request, preserving correspondence by message_id.
func batchRouteMessagesHandler(srv interface{}, stream grpc.ServerStream) error {
	svc := srv.(*RoutingService)
	for {
		req := new(RouteRequest)
		if err := stream.RecvMsg(req); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		resp, err := svc.RouteMessage(stream.Context(), req)
		if err != nil {
			return err
		}
		if err := stream.SendMsg(resp); err != nil {
			return err
		}
	}
}

// ServiceDesc is the hand-authored grpc.ServiceDesc standing in for
// protoc-gen-go-grpc's generated registration. Method/stream shapes
// mirror routing/proto/routing.proto.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "routing.RoutingService",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RouteMessage", Handler: routeMessageHandler},
		{MethodName: "CheckStatus", Handler: checkStatusHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "BatchRouteMessages",
			Handler:       batchRouteMessagesHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "routing/proto/routing.proto",
}

// Client is a thin wrapper over a grpc.ClientConn exposing the three
// routing operations with the JSON codec selected explicitly, for
// callers (the gateway's router handlers) that
// don't want to hand-write CallOption plumbing themselves.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an already-dialled connection (dial with
// grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
// and grpc.CallContentSubtype("proto") per-call, or simply omit a
// content-subtype so the "proto"-named codec this package registers is
// used by default).
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// RouteMessage invokes the unary RouteMessage RPC.
func (c *Client) RouteMessage(ctx context.Context, req *RouteRequest) (*RouteResponse, error) {
	resp := new(RouteResponse)
	err := c.conn.Invoke(ctx, "/routing.RoutingService/RouteMessage", req, resp)
	return resp, err
}

// CheckStatus invokes the unary CheckStatus RPC.
func (c *Client) CheckStatus(ctx context.Context, req *Empty) (*StatusResponse, error) {
	resp := new(StatusResponse)
	err := c.conn.Invoke(ctx, "/routing.RoutingService/CheckStatus", req, resp)
	return resp, err
}

// BatchRouteMessages opens the bidirectional stream.
func (c *Client) BatchRouteMessages(ctx context.Context) (grpc.ClientStream, error) {
	return c.conn.NewStream(ctx, &ServiceDesc.Streams[0], "/routing.RoutingService/BatchRouteMessages")
}
