package middleware

import (
	"context"
	"strings"
	"time"

	pkglog "ReelGuard/pkg/log"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// slowRequestThreshold flags requests that exceed it with a separate warning.
const slowRequestThreshold = 5 * time.Second

// Logging returns a middleware that logs every HTTP request with its
// method, path, status and duration. It generates a request ID when the
// client did not send one and injects it into the context so downstream
// log lines can carry it.
func Logging(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				method    string
				path      string
				ip        string
				userAgent string
				requestID string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				method = tr.Operation()
				path = tr.Operation()

				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
					if httpReq.URL.RawQuery != "" {
						path = path + "?" + httpReq.URL.RawQuery
					}

					ip = extractClientIP(httpReq)
					userAgent = httpReq.Header.Get("User-Agent")

					requestID = httpReq.Header.Get("X-Request-ID")
				}
			}
			if requestID == "" {
				requestID = pkglog.GenerateRequestID()
			}

			ctx = pkglog.WithRequestID(ctx, requestID)

			reply, err := handler(ctx, req)

			duration := time.Since(startTime)
			durationMs := duration.Milliseconds()

			status := 200
			if err != nil {
				status = extractHTTPStatus(err)
			}

			logger.Request(method, path, status, durationMs,
				"request_id", requestID,
				"ip", ip,
				"user_agent", userAgent,
			)

			if duration > slowRequestThreshold {
				logger.Warnw("slow request detected",
					"request_id", requestID,
					"method", method,
					"path", path,
					"duration_ms", durationMs)
			}

			return reply, err
		}
	}
}

// extractClientIP picks the client address from proxy headers before
// falling back to the socket address.
// Priority: X-Real-IP > X-Forwarded-For > RemoteAddr
func extractClientIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	return req.RemoteAddr
}

// extractHTTPStatus maps a handler error to an HTTP status code.
func extractHTTPStatus(err error) int {
	if err == nil {
		return 200
	}
	if se := kerrors.FromError(err); se != nil {
		return int(se.Code)
	}
	return 500
}
