package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type callerKey struct{}

// caller is filled in by Auth so Logging can report who made the call.
type caller struct{ uid string }

func noteCaller(ctx context.Context, uid string) {
	if c, ok := ctx.Value(callerKey{}).(*caller); ok {
		c.uid = uid
	}
}

// Logging writes one line per call. Server-side failures log at error level.
func Logging(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		c := &caller{}
		start := time.Now()
		resp, err := next(context.WithValue(ctx, callerKey{}, c), req)

		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(start)),
		}
		if c.uid != "" {
			fields = append(fields, zap.String("uid", c.uid))
		}
		switch code {
		case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
			log.Error("rpc", append(fields, zap.Error(err))...)
		default:
			if err != nil {
				fields = append(fields, zap.String("error", status.Convert(err).Message()))
			}
			log.Info("rpc", fields...)
		}
		return resp, err
	}
}
