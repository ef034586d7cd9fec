// Package gateway serves GolfService to browsers as JSON over HTTP/1.1 by
// forwarding each request to the gRPC server.
package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"teetime-api/internal/middleware"
	"teetime-api/internal/rpc"
)

const maxBody = 1 << 20

type Gateway struct {
	conn    *grpc.ClientConn
	client  *rpc.Client
	methods map[string]bool
	log     *zap.Logger
}

// Dial connects to the gRPC server at addr (e.g. "localhost:50051").
func Dial(addr string, log *zap.Logger, opts ...grpc.DialOption) (*Gateway, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("gateway dial: %w", err)
	}
	methods := map[string]bool{}
	for _, m := range rpc.Methods() {
		methods[m] = true
	}
	return &Gateway{conn: conn, client: rpc.NewGolfServiceClient(conn), methods: methods, log: log}, nil
}

func (g *Gateway) Close() error { return g.conn.Close() }

func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/rpc/{method}", g.forward)
	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.Header().Add("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) forward(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	if !g.methods[method] {
		writeError(w, http.StatusNotFound, "unknown method "+method)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "malformed JSON")
		return
	}

	// forward metadata
	md := metadata.MD{}
	if v := r.Header.Get("Authorization"); v != "" {
		md.Set("authorization", v)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		md.Set(middleware.ForwardedForKey, host)
	}
	ctx := metadata.NewOutgoingContext(r.Context(), md)

	// pass the JSON through without decoding it here
	var resp rpc.Frame
	if err := g.client.Call(ctx, method, &rpc.Frame{Data: body}, &resp); err != nil {
		st := status.Convert(err)
		code := HTTPStatus(st.Code())
		if code == http.StatusInternalServerError {
			g.log.Error("gateway call", zap.String("method", method), zap.Error(err))
		}
		writeError(w, code, st.Message())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Data)
}

// HTTPStatus maps a gRPC code to the status the browser sees.
func HTTPStatus(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.FailedPrecondition:
		return http.StatusConflict
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg, "code": code})
}
