/*
httprouter.go is the HTTP route table: routes are registered by
(method, path) pairs, a registered handler receives the parsed request
and fills the response structure, unmatched routes yield 404 Not
Found, and handler panics yield 500 Internal Server Error. This sits
on top of Router.RegisterHTTP: HTTPRouter.Handle is installed as the
gateway's single HTTP Handler and fans out by method+path itself,
the same map-based dispatch idiom Router uses for message kinds,
applied one layer down.
*/
package gateway

import (
	"encoding/json"
	"log"

	"github.com/nightfall-labs/imgw/connection"
	"github.com/nightfall-labs/imgw/protocol"
)

// HTTPResponse is what an HTTPRouteHandler fills in to answer a
// request.
type HTTPResponse struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// JSON sets resp's body to the JSON encoding of v and sets
// Content-Type accordingly. If v cannot be encoded, resp is instead set
// to status 500 with the body "500 Internal Server Error".
func (r *HTTPResponse) JSON(status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		r.Status = 500
		r.Body = []byte("500 Internal Server Error")
		return
	}
	r.Status = status
	if r.Headers == nil {
		r.Headers = map[string]string{}
	}
	r.Headers["Content-Type"] = "application/json"
	r.Body = data
}

// HTTPRouteHandler handles one matched (method, path) request.
type HTTPRouteHandler func(req *protocol.HTTPHeader, body []byte, resp *HTTPResponse)

// HTTPRouter dispatches HTTP requests by (method, path).
type HTTPRouter struct {
	routes map[string]HTTPRouteHandler
}

// NewHTTPRouter constructs an empty HTTPRouter.
func NewHTTPRouter() *HTTPRouter {
	return &HTTPRouter{routes: make(map[string]HTTPRouteHandler)}
}

// Register installs handler for method+path, e.g. Register("GET",
// "/status", ...). A later call for the same pair replaces the
// previous handler.
func (h *HTTPRouter) Register(method, path string, handler HTTPRouteHandler) {
	h.routes[routeKey(method, path)] = handler
}

// Handle is a gateway.Handler suitable for Router.RegisterHTTP: it
// looks up msg's (method, path), runs the matched handler (recovering
// from panics as a 500), and writes the serialized HTTP response back
// to conn.
func (h *HTTPRouter) Handle(msg *protocol.Message, conn *connection.Connection) {
	if msg.HTTP == nil || !msg.HTTP.IsRequest {
		return
	}

	resp := h.dispatch(msg.HTTP, msg.Payload)
	frame := protocol.SerializeHTTPResponse(resp.Status, statusReason(resp.Status), resp.Headers, resp.Body)
	conn.Send(frame)
}

func (h *HTTPRouter) dispatch(req *protocol.HTTPHeader, body []byte) (resp *HTTPResponse) {
	handler, ok := h.routes[routeKey(req.Method, req.URL)]
	if !ok {
		return &HTTPResponse{Status: 404, Body: []byte("404 Not Found")}
	}

	resp = &HTTPResponse{Status: 200}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[HTTPRouter] handler panic for %s %s: %v", req.Method, req.URL, r)
			resp = &HTTPResponse{Status: 500, Body: []byte("500 Internal Server Error")}
		}
	}()
	handler(req, body, resp)
	return resp
}

func routeKey(method, path string) string {
	return method + " " + path
}

func statusReason(status int) string {
	switch status {
	case 200:
		return "OK"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	default:
		return "Unknown"
	}
}
