// Package observability hosts the metrics/health HTTP server and the gRPC
// interceptors that feed the same metrics.
package observability

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"voice-search-assistant/internal/observability/metrics"
)

// Health checks arrive every few seconds; they are only logged at trace.
const healthService = "grpc.health.v1.Health"

// UnaryServerInterceptor records metrics for unary calls and turns handler
// panics into codes.Internal.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				err = recovered(info.FullMethod, r)
			}
			observe(ctx, m, info.FullMethod, start, err)
		}()
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of UnaryServerInterceptor.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				err = recovered(info.FullMethod, r)
			}
			observe(ss.Context(), m, info.FullMethod, start, err)
		}()
		return handler(srv, ss)
	}
}

func recovered(fullMethod string, r any) error {
	log.Error().Interface("panic", r).Str("method", fullMethod).Msg("gRPC handler panicked")
	return status.Errorf(codes.Internal, "internal error in %s", fullMethod)
}

func observe(ctx context.Context, m *metrics.Metrics, fullMethod string, start time.Time, err error) {
	elapsed := time.Since(start)
	code := status.Code(err)
	m.RecordGRPCCall(fullMethod, code.String(), elapsed.Seconds())

	service, method := splitMethod(fullMethod)
	ev := log.Debug()
	switch {
	case code != codes.OK:
		ev = log.Warn().Err(err)
	case service == healthService:
		ev = log.Trace()
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		ev = ev.Str("peer", p.Addr.String())
	}
	ev.Str("service", service).
		Str("method", method).
		Str("code", code.String()).
		Dur("duration", elapsed).
		Msg("gRPC call")
}

// splitMethod splits "/pkg.Service/Method".
func splitMethod(fullMethod string) (service, method string) {
	full := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(full, "/"); i >= 0 {
		return full[:i], full[i+1:]
	}
	return "unknown", full
}
