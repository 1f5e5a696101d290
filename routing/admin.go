/*
admin.go - instance registration surface.

The routing service and its downstream instances are separate
processes, so populating the service-instance registry can't be a
plain in-process method call; this file exposes Register/Unregister
over a small second gRPC service instead of reaching for a global or a
file-based handoff.
*/
package routing

import (
	"context"

	"google.golang.org/grpc"
)

// RegisterRequest is AdminService.Register's request.
type RegisterRequest struct {
	ServiceID   string            `json:"service_id"`
	ServiceName string            `json:"service_name"`
	Host        string            `json:"host"`
	Port        int               `json:"port"`
	Metadata    map[string]string `json:"metadata"`
}

// UnregisterRequest is AdminService.Unregister's request.
type UnregisterRequest struct {
	ServiceID string `json:"service_id"`
}

// AdminServer is implemented by RoutingService to back AdminService.
type AdminServer interface {
	Register(ctx context.Context, req *RegisterRequest) (*Empty, error)
	Unregister(ctx context.Context, req *UnregisterRequest) (*Empty, error)
}

// Register implements AdminServer by inserting/updating req in the
// instance registry.
func (s *RoutingService) Register(ctx context.Context, req *RegisterRequest) (*Empty, error) {
	s.registry.Register(&ServiceInstance{
		ServiceID:   req.ServiceID,
		ServiceName: req.ServiceName,
		Host:        req.Host,
		Port:        req.Port,
		Metadata:    req.Metadata,
	})
	s.metrics.SetServiceCount(s.registry.Count())
	return &Empty{}, nil
}

// Unregister implements AdminServer by removing req.ServiceID.
func (s *RoutingService) Unregister(ctx context.Context, req *UnregisterRequest) (*Empty, error) {
	s.registry.Unregister(req.ServiceID)
	s.metrics.SetServiceCount(s.registry.Count())
	return &Empty{}, nil
}

func registerHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(RegisterRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).Register(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/routing.AdminService/Register"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServer).Register(ctx, req.(*RegisterRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func unregisterHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(UnregisterRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).Unregister(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/routing.AdminService/Unregister"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServer).Unregister(ctx, req.(*UnregisterRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// AdminServiceDesc registers Register/Unregister alongside ServiceDesc
// on the routing service's grpc.Server.
var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: "routing.AdminService",
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: registerHandler},
		{MethodName: "Unregister", Handler: unregisterHandler},
	},
	Metadata: "routing/proto/routing.proto",
}

// AdminClient is a thin wrapper exposing Register/Unregister to a
// downstream ServiceInstance process.
type AdminClient struct {
	conn *grpc.ClientConn
}

// NewAdminClient wraps an already-dialled connection.
func NewAdminClient(conn *grpc.ClientConn) *AdminClient {
	return &AdminClient{conn: conn}
}

// Register invokes AdminService.Register.
func (c *AdminClient) Register(ctx context.Context, req *RegisterRequest) (*Empty, error) {
	resp := new(Empty)
	err := c.conn.Invoke(ctx, "/routing.AdminService/Register", req, resp)
	return resp, err
}

// Unregister invokes AdminService.Unregister.
func (c *AdminClient) Unregister(ctx context.Context, req *UnregisterRequest) (*Empty, error) {
	resp := new(Empty)
	err := c.conn.Invoke(ctx, "/routing.AdminService/Unregister", req, resp)
	return resp, err
}
