package protocol

import (
	"encoding/json"
	"fmt"
)

/**
Lifecycle of an MCP session as seen by this server:
	initialize            -> we reply with protocol version, capabilities and server info
	notifications/initialized (no reply)
	tools/list            -> the forecasting tools and their input schemas
	tools/call            -> run one tool; long simulations may be abandoned by the client
	notifications/cancelled {"requestId": <id>} (no reply) -> cancel that call's context
	resources/list, resources/read -> the active forecast configuration
*/

// MethodType defines the possible JSON-RPC method types
type MethodType string

const (
	MethodInitialize    MethodType = "initialize"
	MethodInitialized   MethodType = "notifications/initialized"
	MethodPing          MethodType = "ping"
	MethodToolsList     MethodType = "tools/list"
	MethodToolsCall     MethodType = "tools/call"
	MethodResourcesList MethodType = "resources/list"
	MethodResourcesRead MethodType = "resources/read"
	MethodCancelled     MethodType = "notifications/cancelled"

	// legacy single-shot invocation used by older clients
	MethodInvokeTool MethodType = "invoke_tool"
)

// NotificationPrefix marks methods that never receive a response
const NotificationPrefix = "notifications/"

// JsonRpcVersion is the JSON-RPC protocol version
const JsonRpcVersion = "2.0"

// ProtocolVersion is offered when the client does not ask for one
const ProtocolVersion = "2024-11-05"

// JsonRpcRequest represents a JSON-RPC 2.0 request object.
// A request without an ID is a notification.
type JsonRpcRequest struct {
	JsonRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

// IsNotification reports whether the sender expects no response
func (r *JsonRpcRequest) IsNotification() bool {
	return r.ID == nil
}

// JsonRpcResponse represents a JSON-RPC 2.0 response object.
// Exactly one of Result and Error is set.
type JsonRpcResponse struct {
	JsonRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JsonRpcError   `json:"error,omitempty"`
	ID      any             `json:"id"`
}

// JsonRpcError represents a JSON-RPC 2.0 error object
type JsonRpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ToolProperty is a (small) JSON schema fragment describing one tool argument
type ToolProperty struct {
	Type        string                  `json:"type"`
	Description string                  `json:"description,omitempty"`
	Enum        []string                `json:"enum,omitempty"`
	Minimum     *float64                `json:"minimum,omitempty"`
	Maximum     *float64                `json:"maximum,omitempty"`
	Items       *ToolProperty           `json:"items,omitempty"`
	Properties  map[string]ToolProperty `json:"properties,omitempty"`
	Required    []string                `json:"required,omitempty"`
}

type InputSchema struct {
	Type                 string                  `json:"type"`
	Properties           map[string]ToolProperty `json:"properties,omitempty"`
	Required             []string                `json:"required"`
	AdditionalProperties bool                    `json:"additionalProperties"`
}

// Tool is a callable operation advertised in tools/list
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// ToolsResponse is the result of tools/list
type ToolsResponse struct {
	Tools []Tool `json:"tools"`
}

// Resource is a read-only document published by the server
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// ResourcesResponse is the result of resources/list
type ResourcesResponse struct {
	Resources []Resource `json:"resources"`
}

// ResourceContent is one entry of a resources/read result
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// ToolContent is one block of a tools/call result
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolCallResult wraps a tool's structured output for tools/call
type ToolCallResult struct {
	Content           []ToolContent `json:"content"`
	StructuredContent any           `json:"structuredContent,omitempty"`
	IsError           bool          `json:"isError,omitempty"`
}

// Standard error codes defined by the JSON-RPC 2.0 specification
const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603

	// -32000 to -32099 are reserved for implementation-defined server errors
	ErrToolExecutionFailed = -32000
	ErrRequestCancelled    = -32800
)

// Error returns a string representation of the error
func (e *JsonRpcError) Error() string {
	return fmt.Sprintf("jsonrpc error: code=%d message=%s", e.Code, e.Message)
}

// NewJsonRpcRequest creates a new JSON-RPC 2.0 request
func NewJsonRpcRequest(method string, params any, id any) (*JsonRpcRequest, error) {
	var paramsJSON json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params for %s: %w", method, err)
		}
		paramsJSON = b
	}
	return &JsonRpcRequest{
		JsonRPC: JsonRpcVersion,
		Method:  method,
		Params:  paramsJSON,
		ID:      id,
	}, nil
}

// NewJsonRpcNotification creates a request without an ID
func NewJsonRpcNotification(method string, params any) (*JsonRpcRequest, error) {
	return NewJsonRpcRequest(method, params, nil)
}

// NewJsonRpcResponse creates a new JSON-RPC 2.0 success response
func NewJsonRpcResponse(result any, id any) (*JsonRpcResponse, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &JsonRpcResponse{
		JsonRPC: JsonRpcVersion,
		Result:  b,
		ID:      id,
	}, nil
}

// NewJsonRpcErrorResponse creates a new JSON-RPC 2.0 error response
func NewJsonRpcErrorResponse(code int, message string, data any, id any) *JsonRpcResponse {
	return &JsonRpcResponse{
		JsonRPC: JsonRpcVersion,
		Error: &JsonRpcError{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
}

// ParseJsonRpcRequest parses a JSON-RPC 2.0 request from raw JSON
func ParseJsonRpcRequest(data []byte) (*JsonRpcRequest, error) {
	var req JsonRpcRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	if req.JsonRPC != JsonRpcVersion {
		return nil, fmt.Errorf("invalid JSON-RPC version: %q", req.JsonRPC)
	}
	if req.Method == "" {
		return nil, fmt.Errorf("missing method")
	}
	return &req, nil
}

// ParseJsonRpcResponse parses a JSON-RPC 2.0 response from raw JSON
func ParseJsonRpcResponse(data []byte) (*JsonRpcResponse, error) {
	var resp JsonRpcResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	if resp.JsonRPC != JsonRpcVersion {
		return nil, fmt.Errorf("invalid JSON-RPC version: %q", resp.JsonRPC)
	}
	return &resp, nil
}

// RequestKey turns a request id into a comparable map key. JSON numbers
// arrive as float64 and strings as string, so 7 and "7" stay distinct.
func RequestKey(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return "s:" + v
	default:
		return fmt.Sprintf("n:%v", v)
	}
}

// String returns a JSON string representation of the request
func (r *JsonRpcRequest) String() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("Error marshaling request: %v", err)
	}
	return string(b)
}

// String returns a JSON string representation of the response
func (r *JsonRpcResponse) String() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("Error marshaling response: %v", err)
	}
	return string(b)
}
