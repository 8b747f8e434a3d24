package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/richard-senior/forecast/internal/logger"
	"github.com/richard-senior/forecast/pkg/protocol"
	"github.com/richard-senior/forecast/pkg/resources"
	"github.com/richard-senior/forecast/pkg/tools"
	"github.com/richard-senior/forecast/pkg/transport"
	"github.com/richard-senior/forecast/pkg/util/forecast"
	"golang.org/x/sync/errgroup"
)

// toolPrefix is prepended to tool names by some clients
const toolPrefix = "mcp___"

// HandlerFunc is a function that handles an MCP request
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Info identifies the server in the initialize response
type Info struct {
	Name    string
	Version string
}

// Server represents an MCP server
type Server struct {
	info     Info
	handlers map[string]HandlerFunc

	mu           sync.RWMutex
	tools        []protocol.Tool
	toolHandlers map[string]tools.Handler
	resources    []resources.Definition
	onToolCall   func(tool string, err error)

	inflightMu sync.Mutex
	inflight   map[string]*inflightCall
}

type inflightCall struct {
	cancel context.CancelFunc
}

// NewServer creates a server with the protocol handlers registered and no
// tools or resources
func NewServer(info Info) *Server {
	s := &Server{
		info:         info,
		toolHandlers: make(map[string]tools.Handler),
		inflight:     make(map[string]*inflightCall),
		onToolCall:   func(string, error) {},
	}
	s.handlers = map[string]HandlerFunc{
		string(protocol.MethodInitialize):    s.handleInitialize,
		string(protocol.MethodPing):          s.handlePing,
		string(protocol.MethodToolsList):     s.handleToolsList,
		string(protocol.MethodToolsCall):     s.handleToolsCall,
		string(protocol.MethodInvokeTool):    s.handleInvokeTool,
		string(protocol.MethodResourcesList): s.handleResourcesList,
		string(protocol.MethodResourcesRead): s.handleResourcesRead,
	}
	return s
}

// OnToolCall sets a callback run after every tool call, usually for metrics
func (s *Server) OnToolCall(fn func(tool string, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onToolCall = fn
}

// RegisterTool registers a tool with the server
func (s *Server) RegisterTool(tool protocol.Tool, handler tools.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = append(s.tools, tool)
	s.toolHandlers[tool.Name] = handler
	logger.Info("Registered tool:", tool.Name)
}

// RegisterToolkit registers every tool the toolkit defines
func (s *Server) RegisterToolkit(tk *tools.Toolkit) {
	for _, d := range tk.Definitions() {
		s.RegisterTool(d.Tool, d.Handler)
	}
}

// RegisterResource registers a resource with the server
func (s *Server) RegisterResource(def resources.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = append(s.resources, def)
	logger.Info("Registered resource:", def.Resource.URI)
}

// GetTools returns the list of registered tools
func (s *Server) GetTools() []protocol.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.Tool(nil), s.tools...)
}

// Start serves every transport until ctx is done, a signal arrives or one of
// the transports stops. When one stops the others are shut down too.
func (s *Server) Start(ctx context.Context, transports ...transport.Transport) error {
	if len(transports) == 0 {
		return fmt.Errorf("no transports configured")
	}
	logger.Info("Starting forecast MCP server with", len(transports), "transport(s)")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()
	for _, t := range transports {
		g.Go(func() error {
			defer cancel()
			return t.Serve(runCtx, s.HandleRequest)
		})
	}
	err := g.Wait()
	logger.Info("Forecast MCP server stopped")
	return err
}

// HandleRequest processes a request and returns a response, or nil for
// notifications. It is safe to call concurrently.
func (s *Server) HandleRequest(ctx context.Context, req *protocol.JsonRpcRequest) *protocol.JsonRpcResponse {
	logger.Info(">> ", req.Method)
	logger.Debug("Full request:", req.String())

	if req.IsNotification() || strings.HasPrefix(req.Method, protocol.NotificationPrefix) {
		s.handleNotification(req)
		return nil
	}

	resp := &protocol.JsonRpcResponse{
		JsonRPC: protocol.JsonRpcVersion,
		ID:      req.ID,
	}

	handler := s.handlers[req.Method]
	if handler == nil {
		resp.Error = &protocol.JsonRpcError{
			Code:    protocol.ErrMethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
		return resp
	}

	ctx, done := s.track(ctx, req.ID)
	defer done()

	result, err := handler(ctx, req.Params)
	if err != nil {
		resp.Error = toJsonRpcError(err)
		logger.Warn("Request failed:", req.Method, err.Error())
		return resp
	}

	b, err := json.Marshal(result)
	if err != nil {
		resp.Error = &protocol.JsonRpcError{
			Code:    protocol.ErrInternal,
			Message: "Failed to marshal result: " + err.Error(),
		}
		return resp
	}
	resp.Result = b
	logger.Debug("Full response:", resp.String())
	return resp
}

// track makes the request cancellable by a later notifications/cancelled
func (s *Server) track(ctx context.Context, id any) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	call := &inflightCall{cancel: cancel}
	key := protocol.RequestKey(id)

	s.inflightMu.Lock()
	s.inflight[key] = call
	s.inflightMu.Unlock()

	return ctx, func() {
		s.inflightMu.Lock()
		if s.inflight[key] == call {
			delete(s.inflight, key)
		}
		s.inflightMu.Unlock()
		cancel()
	}
}

func (s *Server) handleNotification(req *protocol.JsonRpcRequest) {
	if req.Method != string(protocol.MethodCancelled) {
		logger.Info("Received notification:", req.Method)
		return
	}
	var p struct {
		RequestID any    `json:"requestId"`
		Reason    string `json:"reason"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil || p.RequestID == nil {
		logger.Warn("Ignoring malformed cancellation", string(req.Params))
		return
	}
	s.inflightMu.Lock()
	call := s.inflight[protocol.RequestKey(p.RequestID)]
	s.inflightMu.Unlock()
	if call == nil {
		logger.Debug("Cancellation for unknown or finished request", p.RequestID)
		return
	}
	logger.Info("Cancelling request", p.RequestID, p.Reason)
	call.cancel()
}

// toJsonRpcError picks the error code: bad input is the caller's fault,
// anything else is a failed tool
func toJsonRpcError(err error) *protocol.JsonRpcError {
	var rpcErr *protocol.JsonRpcError
	var verr *forecast.ValidationError
	var insufficient *forecast.InsufficientDataError

	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.As(err, &verr):
		return &protocol.JsonRpcError{
			Code:    protocol.ErrInvalidParams,
			Message: err.Error(),
			Data:    map[string]string{"field": verr.Field, "reason": verr.Reason},
		}
	case errors.As(err, &insufficient):
		return &protocol.JsonRpcError{
			Code:    protocol.ErrInvalidParams,
			Message: err.Error(),
			Data:    map[string]int{"minimum": insufficient.Minimum, "actual": insufficient.Actual},
		}
	case errors.Is(err, forecast.ErrJobNotFound), errors.Is(err, forecast.ErrRecordNotFound):
		return &protocol.JsonRpcError{Code: protocol.ErrInvalidParams, Message: err.Error()}
	case errors.Is(err, context.Canceled):
		return &protocol.JsonRpcError{Code: protocol.ErrRequestCancelled, Message: "Request cancelled"}
	default:
		return &protocol.JsonRpcError{Code: protocol.ErrToolExecutionFailed, Message: err.Error()}
	}
}

func (s *Server) handlePing(ctx context.Context, params json.RawMessage) (any, error) {
	return struct{}{}, nil
}

// handleInitialize handles the initialize method
func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (any, error) {
	version := protocol.ProtocolVersion
	var p struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &protocol.JsonRpcError{Code: protocol.ErrInvalidParams, Message: "Invalid initialize parameters: " + err.Error()}
		}
	}
	if p.ProtocolVersion != "" {
		version = p.ProtocolVersion
	}
	logger.Info("Initializing with protocol version", version)

	s.mu.RLock()
	capabilities := map[string]any{}
	if len(s.tools) > 0 {
		capabilities["tools"] = map[string]any{"listChanged": false}
	}
	if len(s.resources) > 0 {
		capabilities["resources"] = map[string]any{"listChanged": false}
	}
	s.mu.RUnlock()

	type serverInfo struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	return struct {
		ProtocolVersion string         `json:"protocolVersion"`
		Capabilities    map[string]any `json:"capabilities"`
		ServerInfo      serverInfo     `json:"serverInfo"`
	}{
		ProtocolVersion: version,
		Capabilities:    capabilities,
		ServerInfo:      serverInfo{Name: s.info.Name, Version: s.info.Version},
	}, nil
}

// handleToolsList handles the tools/list method
func (s *Server) handleToolsList(ctx context.Context, params json.RawMessage) (any, error) {
	return protocol.ToolsResponse{Tools: s.GetTools()}, nil
}

// handleToolsCall runs a tool and wraps its output as both text and structured content
func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &protocol.JsonRpcError{Code: protocol.ErrInvalidParams, Message: "Invalid tools/call parameters: " + err.Error()}
	}

	result, err := s.callTool(ctx, p.Name, p.Arguments)
	if err != nil {
		return nil, err
	}
	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s result: %w", p.Name, err)
	}
	return protocol.ToolCallResult{
		Content:           []protocol.ToolContent{{Type: "text", Text: string(text)}},
		StructuredContent: result,
	}, nil
}

// handleInvokeTool serves the older invoke_tool method, which returns the
// tool output unwrapped
func (s *Server) handleInvokeTool(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Name       string         `json:"name"`
		Parameters map[string]any `json:"parameters"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &protocol.JsonRpcError{Code: protocol.ErrInvalidParams, Message: "Invalid parameters for invoke_tool: " + err.Error()}
	}
	return s.callTool(ctx, p.Name, p.Parameters)
}

func (s *Server) callTool(ctx context.Context, name string, args map[string]any) (any, error) {
	s.mu.RLock()
	handler := s.toolHandlers[name]
	if handler == nil && strings.HasPrefix(name, toolPrefix) {
		name = strings.TrimPrefix(name, toolPrefix)
		handler = s.toolHandlers[name]
	}
	observe := s.onToolCall
	s.mu.RUnlock()

	if handler == nil {
		return nil, &protocol.JsonRpcError{Code: protocol.ErrInvalidParams, Message: fmt.Sprintf("Unknown tool: %s", name)}
	}

	logger.Info("Tool call requested for:", name)
	result, err := handler(ctx, args)
	observe(name, err)
	return result, err
}

// handleResourcesList handles the resources/list method
func (s *Server) handleResourcesList(ctx context.Context, params json.RawMessage) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]protocol.Resource, 0, len(s.resources))
	for _, d := range s.resources {
		list = append(list, d.Resource)
	}
	return protocol.ResourcesResponse{Resources: list}, nil
}

func (s *Server) handleResourcesRead(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &protocol.JsonRpcError{Code: protocol.ErrInvalidParams, Message: "Invalid resources/read parameters: " + err.Error()}
	}

	s.mu.RLock()
	var read resources.Reader
	for _, d := range s.resources {
		if d.Resource.URI == p.URI {
			read = d.Read
			break
		}
	}
	s.mu.RUnlock()
	if read == nil {
		return nil, &protocol.JsonRpcError{Code: protocol.ErrInvalidParams, Message: "Resource not found: " + p.URI}
	}

	content, err := read()
	if err != nil {
		return nil, err
	}
	return struct {
		Contents []protocol.ResourceContent `json:"contents"`
	}{Contents: []protocol.ResourceContent{content}}, nil
}
