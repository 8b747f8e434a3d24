package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/richard-senior/forecast/internal/logger"
	"github.com/richard-senior/forecast/pkg/protocol"
)

// StdioTransport implements communication over standard input/output.
// Each message is a single JSON object; responses are newline terminated.
type StdioTransport struct {
	reader io.Reader

	wmu    sync.Mutex
	writer *bufio.Writer
}

// NewStdioTransport creates a new transport that uses stdin/stdout
func NewStdioTransport() *StdioTransport {
	return NewStreamTransport(os.Stdin, os.Stdout)
}

// NewStreamTransport speaks the stdio framing over any reader and writer
func NewStreamTransport(r io.Reader, w io.Writer) *StdioTransport {
	return &StdioTransport{
		reader: r,
		writer: bufio.NewWriter(w),
	}
}

// Serve reads requests until EOF and hands each to its own goroutine so a
// long simulation never blocks the reader. When the input closes Serve waits
// for in-flight calls to answer; cancelling ctx abandons them instead.
func (t *StdioTransport) Serve(ctx context.Context, handle RequestHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	messages := make(chan json.RawMessage)
	readErr := make(chan error, 1)
	go func() {
		readErr <- t.read(ctx, messages)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				logger.Info("Received EOF on stdin, client disconnected")
				return nil
			}
			return err
		case raw := <-messages:
			req, errResp := decodeRequest(raw)
			if errResp != nil {
				if err := t.WriteResponse(errResp); err != nil {
					return err
				}
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				resp := handle(ctx, req)
				if resp == nil {
					return
				}
				if err := t.WriteResponse(resp); err != nil {
					logger.Error("Failed to write response:", err)
				}
			}()
		}
	}
}

func (t *StdioTransport) read(ctx context.Context, out chan<- json.RawMessage) error {
	dec := json.NewDecoder(t.reader)
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			// a syntax error leaves the decoder unusable so the stream is over
			logger.Error("Error reading from stdin:", err)
			_ = t.WriteResponse(protocol.NewJsonRpcErrorResponse(protocol.ErrParse, "Parse error: "+err.Error(), nil, nil))
			return fmt.Errorf("failed to decode request: %w", err)
		}
		select {
		case out <- raw:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// decodeRequest parses one message. Messages that are JSON but not a usable
// request get an error response instead of ending the session.
func decodeRequest(raw json.RawMessage) (*protocol.JsonRpcRequest, *protocol.JsonRpcResponse) {
	logger.Debug("Received raw request:", string(raw))
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return nil, protocol.NewJsonRpcErrorResponse(protocol.ErrInvalidRequest, "Batch requests are not supported", nil, nil)
	}
	req, err := protocol.ParseJsonRpcRequest(trimmed)
	if err != nil {
		logger.Warn("Failed to parse JSON-RPC request:", err)
		var id struct {
			ID any `json:"id"`
		}
		_ = json.Unmarshal(trimmed, &id)
		return nil, protocol.NewJsonRpcErrorResponse(protocol.ErrInvalidRequest, "Invalid request: "+err.Error(), nil, id.ID)
	}
	return req, nil
}

// WriteResponse writes a JSON-RPC response followed by a newline. Safe for
// concurrent use.
func (t *StdioTransport) WriteResponse(response *protocol.JsonRpcResponse) error {
	b, err := json.Marshal(response)
	if err != nil {
		logger.Error("Failed to marshal response:", err)
		return err
	}
	b = append(b, '\n')
	logger.Debug("Sending response:", string(b))

	t.wmu.Lock()
	defer t.wmu.Unlock()
	if _, err := t.writer.Write(b); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush response: %w", err)
	}
	return nil
}
