package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/test/bufconn"

	"teetime-api/internal/gateway"
	"teetime-api/internal/handler"
	"teetime-api/internal/middleware"
	"teetime-api/internal/rpc"
	"teetime-api/internal/store/memstore"
)

const secret = "gateway-secret"

func setup(t *testing.T) *httptest.Server {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.ForceServerCodec(rpc.Codec{}),
		grpc.ChainUnaryInterceptor(middleware.Logging(zap.NewNop()), middleware.Auth(secret)),
	)
	rpc.RegisterGolfServiceServer(srv, handler.New(memstore.New(), secret))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	gw, err := gateway.Dial("passthrough:///bufnet", zap.NewNop(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { gw.Close() })

	ts := httptest.NewServer(gw.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, ts *httptest.Server, method, token string, body any) (int, map[string]any) {
	t.Helper()
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/rpc/"+method, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestGatewayFlow(t *testing.T) {
	ts := setup(t)

	code, reg := post(t, ts, "Register", "", map[string]string{
		"email": "gw@test.com", "username": "gw", "password": "testpass123",
	})
	if code != http.StatusOK {
		t.Fatalf("register: %d %v", code, reg)
	}
	token, _ := reg["token"].(string)
	if token == "" {
		t.Fatalf("no token in %v", reg)
	}

	code, g := post(t, ts, "CreateGroup", token, map[string]string{"name": "Gateway Golfers"})
	if code != http.StatusOK {
		t.Fatalf("create group: %d %v", code, g)
	}
	if g["name"] != "Gateway Golfers" {
		t.Errorf("group = %v", g)
	}

	code, body := post(t, ts, "CreateGroup", token, map[string]string{"name": "Second"})
	if code != http.StatusConflict {
		t.Errorf("limit: %d %v", code, body)
	}
	if body["code"] != float64(http.StatusConflict) || body["error"] == "" {
		t.Errorf("error body = %v", body)
	}

	code, groups := post(t, ts, "GetGroups", token, nil)
	if code != http.StatusOK {
		t.Fatalf("get groups: %d", code)
	}
	if list, _ := groups["groups"].([]any); len(list) != 1 {
		t.Errorf("groups = %v", groups)
	}
}

func TestGatewayErrors(t *testing.T) {
	ts := setup(t)

	tests := []struct {
		name   string
		method string
		token  string
		want   int
	}{
		{"no token", "GetGroups", "", http.StatusUnauthorized},
		{"bad token", "GetGroups", "garbage", http.StatusUnauthorized},
		{"unknown method", "DropTables", "", http.StatusNotFound},
		{"validation", "Login", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := post(t, ts, tt.method, tt.token, map[string]string{})
			if code != tt.want {
				t.Errorf("got %d, want %d", code, tt.want)
			}
		})
	}
}

func TestGatewayMalformedJSON(t *testing.T) {
	ts := setup(t)
	resp, err := http.Post(ts.URL+"/rpc/Login", "application/json", bytes.NewBufferString("{nope"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts := setup(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("got %d", resp.StatusCode)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := map[codes.Code]int{
		codes.OK:                 200,
		codes.Unauthenticated:    401,
		codes.PermissionDenied:   403,
		codes.NotFound:           404,
		codes.AlreadyExists:      409,
		codes.FailedPrecondition: 409,
		codes.InvalidArgument:    400,
		codes.ResourceExhausted:  429,
		codes.Internal:           500,
		codes.Unavailable:        500,
	}
	for c, want := range tests {
		if got := gateway.HTTPStatus(c); got != want {
			t.Errorf("%v: got %d, want %d", c, got, want)
		}
	}
}
