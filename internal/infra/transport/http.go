// Package transport implements the default Transport: dialing peers and
// serving inbound protocol requests over HTTP, using go-chi/chi/v5 for
// routing and encoding/json for bodies — grounded on the teacher's
// api.Server (internal/api/server.go), whose middleware stack and
// chi.Route grouping this package's Serve mirrors.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ringmesh/ringmesh/internal/domain"
)

// HTTP is the default domain.Transport implementation.
type HTTP struct {
	client *http.Client
}

// New creates an HTTP transport whose client has a fixed 10s outbound
// request timeout ceiling. Callers still pass a context.Context per call;
// this client timeout is only a backstop.
func New() *HTTP {
	return &HTTP{client: &http.Client{Timeout: 10 * time.Second}}
}

func (h *HTTP) do(ctx context.Context, target, path string, reqBody, respBody any) error {
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("transport: marshal request: %w", err)
	}
	url := fmt.Sprintf("http://%s%s", target, path)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("transport: %w: %w", domain.ErrTransportClosed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("transport: %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("transport: %w: %w", domain.ErrMalformedWire, err)
	}
	return nil
}

// Ping implements domain.Transport.
func (h *HTTP) Ping(ctx context.Context, target string, req domain.PingRequest) (domain.PingResponse, error) {
	var resp domain.PingResponse
	err := h.do(ctx, target, "/swim/ping", req, &resp)
	return resp, err
}

// PingReq implements domain.Transport.
func (h *HTTP) PingReq(ctx context.Context, target string, req domain.PingReqRequest) (domain.PingReqResponse, error) {
	var resp domain.PingReqResponse
	err := h.do(ctx, target, "/swim/ping-req", req, &resp)
	return resp, err
}

// Join implements domain.Transport.
func (h *HTTP) Join(ctx context.Context, target string, req domain.JoinRequest) (domain.JoinResponse, error) {
	var resp domain.JoinResponse
	err := h.do(ctx, target, "/swim/join", req, &resp)
	return resp, err
}

// Leave implements domain.Transport.
func (h *HTTP) Leave(ctx context.Context, target string, req domain.LeaveRequest) (domain.LeaveResponse, error) {
	var resp domain.LeaveResponse
	err := h.do(ctx, target, "/swim/leave", req, &resp)
	return resp, err
}

// Serve mounts the four protocol routes and blocks until ctx is cancelled.
func (h *HTTP) Serve(ctx context.Context, handlers domain.ProtocolHandlers) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/swim", func(r chi.Router) {
		r.Post("/ping", handlerFunc(handlers.HandlePing))
		r.Post("/ping-req", handlerFunc(handlers.HandlePingReq))
		r.Post("/join", handlerFunc(handlers.HandleJoin))
		r.Post("/leave", handlerFunc(handlers.HandleLeave))
	})
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	addr := addrFromContext(ctx)
	srv := &http.Server{Addr: addr, Handler: r}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

type bindAddrKey struct{}

// WithBindAddr attaches the local listen address Serve should bind to.
func WithBindAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, bindAddrKey{}, addr)
}

func addrFromContext(ctx context.Context) string {
	if addr, ok := ctx.Value(bindAddrKey{}).(string); ok {
		return addr
	}
	return ":7946"
}

// handlerFunc adapts a (ctx, from, req) -> (resp, error) protocol handler
// into a chi-compatible http.HandlerFunc.
func handlerFunc[Req any, Resp any](fn func(ctx context.Context, from string, req Req) (Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		resp, err := fn(r.Context(), r.RemoteAddr, req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
