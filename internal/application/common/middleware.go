package common

import (
	"context"
	"reflect"
)

// RequestLoggingMiddleware logs every request that passes through the
// mediator: one entry on entry, one on exit (success or error).
func RequestLoggingMiddleware(ctx context.Context, request Request, next HandlerFunc) (Response, error) {
	logger := LoggerFromContext(ctx)
	logger.Log("INFO", "request received", map[string]interface{}{"type": requestTypeName(request)})

	resp, err := next(ctx, request)
	if err != nil {
		logger.Log("ERROR", "request failed", map[string]interface{}{"type": requestTypeName(request), "error": err.Error()})
		return resp, err
	}

	logger.Log("INFO", "request completed", map[string]interface{}{"type": requestTypeName(request)})
	return resp, nil
}

// RequestTimingMiddleware logs how long the handler chain took to run.
func RequestTimingMiddleware(clockNow func() int64) Middleware {
	return func(ctx context.Context, request Request, next HandlerFunc) (Response, error) {
		start := clockNow()
		resp, err := next(ctx, request)
		elapsedMs := clockNow() - start
		LoggerFromContext(ctx).Log("INFO", "request timing", map[string]interface{}{
			"type":      requestTypeName(request),
			"elapsedMs": elapsedMs,
		})
		return resp, err
	}
}

func requestTypeName(request Request) string {
	if request == nil {
		return "nil"
	}
	return reflect.TypeOf(request).String()
}
