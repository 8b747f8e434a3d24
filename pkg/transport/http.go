package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/richard-senior/forecast/internal/logger"
	"github.com/richard-senior/forecast/pkg/protocol"
	"github.com/rs/cors"
)

// maxRequestBody caps a single JSON-RPC POST
const maxRequestBody = 1 << 20

const shutdownTimeout = 10 * time.Second

// HTTPTransport serves JSON-RPC over POST /rpc alongside health and metrics
// endpoints
type HTTPTransport struct {
	addr    string
	origins []string
	metrics http.Handler
}

// NewHTTPTransport listens on addr. metrics may be nil, in which case
// /metrics is not routed.
func NewHTTPTransport(addr string, origins []string, metrics http.Handler) *HTTPTransport {
	return &HTTPTransport{
		addr:    addr,
		origins: origins,
		metrics: metrics,
	}
}

// Handler builds the routed, CORS-wrapped handler
func (t *HTTPTransport) Handler(handle RequestHandler) http.Handler {
	router := mux.NewRouter()
	router.Use(logRequests)

	router.HandleFunc("/rpc", rpcHandler(handle)).Methods(http.MethodPost)
	router.HandleFunc("/healthz", healthCheck).Methods(http.MethodGet)
	if t.metrics != nil {
		router.Handle("/metrics", t.metrics).Methods(http.MethodGet)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: t.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(router)
}

// Serve listens until ctx is done, then drains open requests
func (t *HTTPTransport) Serve(ctx context.Context, handle RequestHandler) error {
	srv := &http.Server{
		Addr:              t.addr,
		Handler:           t.Handler(handle),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("HTTP transport listening on", t.addr)
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http transport: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http transport shutdown: %w", err)
		}
		return nil
	}
}

func rpcHandler(handle RequestHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err != nil {
			writeJSON(w, http.StatusRequestEntityTooLarge,
				protocol.NewJsonRpcErrorResponse(protocol.ErrInvalidRequest, "Request body too large", nil, nil))
			return
		}
		if !json.Valid(body) {
			writeJSON(w, http.StatusOK,
				protocol.NewJsonRpcErrorResponse(protocol.ErrParse, "Parse error", nil, nil))
			return
		}
		req, errResp := decodeRequest(body)
		if errResp != nil {
			writeJSON(w, http.StatusOK, errResp)
			return
		}

		// the request context ends when the client hangs up, which cancels the call
		resp := handle(r.Context(), req)
		if resp == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write HTTP response:", err)
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("http", r.Method, r.URL.Path, time.Since(start).String())
	})
}
