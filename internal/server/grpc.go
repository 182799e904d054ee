package server

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCServerCloser stops a gRPC server gracefully, falling back to a hard
// stop when pending RPCs do not finish within Timeout.
type GRPCServerCloser struct {
	Server  *grpc.Server
	Timeout time.Duration
}

func (c *GRPCServerCloser) Close() error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	done := make(chan struct{})
	go func() {
		c.Server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		c.Server.Stop()
	}
	return nil
}

// UnaryShutdownInterceptor tracks in-flight unary RPCs and rejects new ones
// once shutdown has begun.
func UnaryShutdownInterceptor(sm *ShutdownManager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !sm.TrackRequest() {
			return nil, status.Error(codes.Unavailable, "server is shutting down")
		}
		defer sm.UntrackRequest()
		return handler(ctx, req)
	}
}
