package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/richard-senior/forecast/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echo answers every request with its method name and ignores notifications
func echo(ctx context.Context, req *protocol.JsonRpcRequest) *protocol.JsonRpcResponse {
	if req.IsNotification() {
		return nil
	}
	resp, _ := protocol.NewJsonRpcResponse(map[string]string{"method": req.Method}, req.ID)
	return resp
}

func readResponses(t *testing.T, out string) []protocol.JsonRpcResponse {
	t.Helper()
	var resps []protocol.JsonRpcResponse
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var r protocol.JsonRpcResponse
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), sc.Text())
		resps = append(resps, r)
	}
	return resps
}

func TestStdioServe(t *testing.T) {
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}
{"jsonrpc":"2.0","method":"notifications/initialized"}
{"jsonrpc":"2.0","id":"two","method":"tools/list"}
[{"jsonrpc":"2.0","id":3,"method":"ping"}]
{"jsonrpc":"1.0","id":4,"method":"ping"}
`)
	var out bytes.Buffer
	tr := NewStreamTransport(in, &out)

	require.NoError(t, tr.Serve(context.Background(), echo))

	resps := readResponses(t, out.String())
	require.Len(t, resps, 4)

	byID := map[string]protocol.JsonRpcResponse{}
	var batchErr, versionErr bool
	for _, r := range resps {
		if r.Error != nil {
			switch r.Error.Code {
			case protocol.ErrInvalidRequest:
				if r.ID == nil {
					batchErr = true
				} else {
					versionErr = true
					assert.Equal(t, 4.0, r.ID)
				}
			}
			continue
		}
		byID[protocol.RequestKey(r.ID)] = r
	}
	assert.True(t, batchErr)
	assert.True(t, versionErr)
	assert.JSONEq(t, `{"method":"ping"}`, string(byID["n:1"].Result))
	assert.JSONEq(t, `{"method":"tools/list"}`, string(byID["s:two"].Result))
}

func TestStdioParseErrorEndsSession(t *testing.T) {
	var out bytes.Buffer
	tr := NewStreamTransport(strings.NewReader(`{"jsonrpc": oops`), &out)

	err := tr.Serve(context.Background(), echo)
	require.Error(t, err)

	resps := readResponses(t, out.String())
	require.Len(t, resps, 1)
	assert.Equal(t, protocol.ErrParse, resps[0].Error.Code)
}

func TestStdioWaitsForInFlightCalls(t *testing.T) {
	slow := func(ctx context.Context, req *protocol.JsonRpcRequest) *protocol.JsonRpcResponse {
		time.Sleep(20 * time.Millisecond)
		return echo(ctx, req)
	}
	var out bytes.Buffer
	tr := NewStreamTransport(strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"slow"}`), &out)
	require.NoError(t, tr.Serve(context.Background(), slow))
	assert.Len(t, readResponses(t, out.String()), 1)
}

func TestStdioContextCancelsCalls(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	var out bytes.Buffer
	tr := NewStreamTransport(pr, &out)

	started := make(chan struct{})
	blocking := func(ctx context.Context, req *protocol.JsonRpcRequest) *protocol.JsonRpcResponse {
		close(started)
		<-ctx.Done()
		return protocol.NewJsonRpcErrorResponse(protocol.ErrRequestCancelled, ctx.Err().Error(), nil, req.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Serve(ctx, blocking) }()

	_, err := pw.Write([]byte(`{"jsonrpc":"2.0","id":1,"method":"simulate"}`))
	require.NoError(t, err)
	<-started
	cancel()
	require.NoError(t, <-done)

	resps := readResponses(t, out.String())
	require.Len(t, resps, 1)
	assert.Equal(t, protocol.ErrRequestCancelled, resps[0].Error.Code)
}

func TestHTTPHandler(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "forecast_predictions_total 0\n")
	})
	srv := httptest.NewServer(NewHTTPTransport(":0", []string{"*"}, metrics).Handler(echo))
	defer srv.Close()

	post := func(body string) *http.Response {
		resp, err := http.Post(srv.URL+"/rpc", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := post(`{"jsonrpc":"2.0","id":7,"method":"tools/list"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rpc protocol.JsonRpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpc))
	assert.Equal(t, 7.0, rpc.ID)
	assert.JSONEq(t, `{"method":"tools/list"}`, string(rpc.Result))

	resp = post(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = post(`{broken`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rpc = protocol.JsonRpcResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpc))
	assert.Equal(t, protocol.ErrParse, rpc.Error.Code)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	m, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer m.Body.Close()
	body, _ := io.ReadAll(m.Body)
	assert.Contains(t, string(body), "forecast_predictions_total")

	wrong, err := http.Get(srv.URL + "/rpc")
	require.NoError(t, err)
	defer wrong.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, wrong.StatusCode)
}

func TestHTTPCORS(t *testing.T) {
	srv := httptest.NewServer(NewHTTPTransport(":0", []string{"https://app.example"}, nil).Handler(echo))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/rpc", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))

	// no metrics handler, no route
	m, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer m.Body.Close()
	assert.Equal(t, http.StatusNotFound, m.StatusCode)
}
