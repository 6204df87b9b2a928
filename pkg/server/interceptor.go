package server

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// logs every unary call; server faults at error level, rejections at debug
func LoggingInterceptor(logger hclog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		began := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		args := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(began)}
		switch code {
		case codes.OK:
			logger.Trace("call", args...)
		case codes.Internal, codes.Unknown, codes.DataLoss:
			logger.Error("call failed", append(args, "error", err)...)
		default:
			logger.Debug("call rejected", append(args, "error", err)...)
		}
		return resp, err
	}
}
