package middleware

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"teetime-api/internal/auth"
	"teetime-api/internal/rpc"
)

func echoUID(ctx context.Context, _ any) (any, error) { return UserID(ctx), nil }

func info(method string) *grpc.UnaryServerInfo {
	return &grpc.UnaryServerInfo{FullMethod: rpc.FullMethod(method)}
}

func withToken(tok string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+tok))
}

func TestAuth(t *testing.T) {
	interceptor := Auth("s3cret")
	good, _ := auth.MakeToken("u1", "s3cret", time.Minute)
	expired, _ := auth.MakeToken("u1", "s3cret", -time.Minute)
	forged, _ := auth.MakeToken("u1", "other", time.Minute)

	tests := []struct {
		name   string
		ctx    context.Context
		method string
		want   codes.Code
		uid    string
	}{
		{"open method", context.Background(), "Login", codes.OK, ""},
		{"no metadata", context.Background(), "GetGroups", codes.Unauthenticated, ""},
		{"no token", metadata.NewIncomingContext(context.Background(), metadata.MD{}), "GetGroups", codes.Unauthenticated, ""},
		{"expired", withToken(expired), "GetGroups", codes.Unauthenticated, ""},
		{"wrong secret", withToken(forged), "GetGroups", codes.Unauthenticated, ""},
		{"valid", withToken(good), "GetGroups", codes.OK, "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := interceptor(tt.ctx, nil, info(tt.method), echoUID)
			if status.Code(err) != tt.want {
				t.Fatalf("code = %v, want %v", status.Code(err), tt.want)
			}
			if err == nil && resp.(string) != tt.uid {
				t.Errorf("uid = %q, want %q", resp, tt.uid)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	defer rl.Stop()
	interceptor := RateLimit(rl)
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 4000}})

	for i := 0; i < 2; i++ {
		if _, err := interceptor(ctx, nil, info("Login"), echoUID); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if _, err := interceptor(ctx, nil, info("Login"), echoUID); status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("third call: %v", err)
	}
	// other methods are not limited
	if _, err := interceptor(ctx, nil, info("GetGroups"), echoUID); err != nil {
		t.Fatalf("unlimited method: %v", err)
	}
	// a different client has its own bucket
	other := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.2"), Port: 4000}})
	if _, err := interceptor(other, nil, info("Login"), echoUID); err != nil {
		t.Fatalf("second client: %v", err)
	}
}

func TestClientIPTrustsOnlyLoopbackForwarding(t *testing.T) {
	md := metadata.Pairs(ForwardedForKey, "203.0.113.9")
	local := peer.NewContext(metadata.NewIncomingContext(context.Background(), md),
		&peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}})
	if got := clientIP(local); got != "203.0.113.9" {
		t.Errorf("loopback peer: %q", got)
	}
	remote := peer.NewContext(metadata.NewIncomingContext(context.Background(), md),
		&peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("198.51.100.7"), Port: 1}})
	if got := clientIP(remote); got != "198.51.100.7" {
		t.Errorf("remote peer: %q", got)
	}
}

func TestLoggingSeesCaller(t *testing.T) {
	logInt := Logging(zap.NewNop())
	authInt := Auth("s3cret")
	tok, _ := auth.MakeToken("u9", "s3cret", time.Minute)

	var seen string
	_, err := logInt(withToken(tok), nil, info("GetGroups"), func(ctx context.Context, req any) (any, error) {
		resp, err := authInt(ctx, req, info("GetGroups"), echoUID)
		if c, ok := ctx.Value(callerKey{}).(*caller); ok {
			seen = c.uid
		}
		return resp, err
	})
	if err != nil {
		t.Fatal(err)
	}
	if seen != "u9" {
		t.Errorf("caller = %q", seen)
	}
}
