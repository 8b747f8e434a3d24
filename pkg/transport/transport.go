package transport

import (
	"context"

	"github.com/richard-senior/forecast/pkg/protocol"
)

// RequestHandler answers one JSON-RPC request. A nil response means nothing
// is sent back, which is the case for notifications.
// ctx is cancelled when the peer goes away or the transport shuts down.
type RequestHandler func(ctx context.Context, req *protocol.JsonRpcRequest) *protocol.JsonRpcResponse

// Transport defines the interface for communication methods
type Transport interface {
	// Serve delivers requests to handle until ctx is done or the peer
	// disconnects. Requests may be handled concurrently.
	Serve(ctx context.Context, handle RequestHandler) error
}
