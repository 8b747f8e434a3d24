package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/richard-senior/forecast/internal/logger"
	"github.com/richard-senior/forecast/pkg/protocol"
	"github.com/richard-senior/forecast/pkg/transport"
)

// Processor runs single requests against a request handler without a
// transport. The command line client uses it for one-shot calls.
type Processor struct {
	handle transport.RequestHandler
	nextID atomic.Int64
}

// New creates a processor around handle, usually server.HandleRequest
func New(handle transport.RequestHandler) *Processor {
	return &Processor{handle: handle}
}

// ProcessRequest handles one JSON-RPC request document and returns the
// response indented. Malformed input produces an error response rather than
// an error. Notifications produce no output.
func (p *Processor) ProcessRequest(ctx context.Context, input []byte) ([]byte, error) {
	req, err := protocol.ParseJsonRpcRequest(input)
	if err != nil {
		logger.Error("Failed to parse input JSON", err)
		code := protocol.ErrInvalidRequest
		if !json.Valid(input) {
			code = protocol.ErrParse
		}
		return json.MarshalIndent(protocol.NewJsonRpcErrorResponse(code, err.Error(), nil, nil), "", "  ")
	}

	logger.Info("Processing request", req.Method)
	resp := p.handle(ctx, req)
	if resp == nil {
		return nil, nil
	}
	return json.MarshalIndent(resp, "", "  ")
}

// CallTool runs a tool described by command line arguments, as parsed by
// ParseToolCall, and returns the tool's output indented
func (p *Processor) CallTool(ctx context.Context, args []string) ([]byte, error) {
	name, arguments, err := ParseToolCall(args)
	if err != nil {
		return nil, err
	}
	req, err := protocol.NewJsonRpcRequest(string(protocol.MethodToolsCall), map[string]any{
		"name":      name,
		"arguments": arguments,
	}, fmt.Sprintf("cli-%d", p.nextID.Add(1)))
	if err != nil {
		return nil, err
	}

	resp := p.handle(ctx, req)
	if resp == nil {
		return nil, fmt.Errorf("no response to %s", name)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	var result struct {
		StructuredContent json.RawMessage `json:"structuredContent"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("unexpected tools/call result: %w", err)
	}
	var out any
	if err := json.Unmarshal(result.StructuredContent, &out); err != nil {
		return nil, fmt.Errorf("unexpected %s output: %w", name, err)
	}
	return json.MarshalIndent(out, "", "  ")
}

// ParseToolCall reads "tool key=value ..." into a tool name and arguments.
// Values that are valid JSON keep their JSON type, so n_simulations=500 is a
// number and entrants='[...]' an array. Anything else is taken as a string.
func ParseToolCall(args []string) (string, map[string]any, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", nil, fmt.Errorf("no tool name given")
	}
	name := strings.TrimSpace(args[0])
	arguments := make(map[string]any, len(args)-1)
	for _, arg := range args[1:] {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return "", nil, fmt.Errorf("argument %q is not key=value", arg)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			decoded = value
		}
		arguments[key] = decoded
	}
	return name, arguments, nil
}
