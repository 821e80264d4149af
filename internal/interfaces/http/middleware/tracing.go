// Package middleware provides HTTP middleware for the accounting sync service.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength is the maximum length for request IDs accepted from headers.
const MaxRequestIDLength = 128

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	// ServiceName is the name of the service for trace identification.
	ServiceName string
	// Enabled controls whether tracing is active.
	Enabled bool
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "retail-accounting-sync",
		Enabled:     true,
	}
}

// Tracing returns OpenTelemetry tracing middleware with default configuration.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig returns otelgin server span middleware. A disabled config
// yields a pass-through handler.
//
// The span name follows the format "METHOD route_pattern", e.g. "POST /api/v1/accounting/sync/:kind".
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// TracingAttributeInjector enriches the current span with request attributes.
// Place it after Tracing and RequestID in the chain.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			if requestID := GetRequestID(c); requestID != "" {
				span.SetAttributes(attribute.String("request_id", requestID))
			}
			if kind := c.Param("kind"); kind != "" {
				span.SetAttributes(attribute.String("accounting.kind", kind))
			}
		}
		c.Next()
	}
}

// SpanErrorMarker marks spans of 4xx/5xx responses with error status.
// Place it after Tracing in the chain.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		statusCode := c.Writer.Status()
		if statusCode < http.StatusBadRequest {
			return
		}

		var msg string
		switch {
		case statusCode >= http.StatusInternalServerError:
			msg = "Internal Server Error"
		case statusCode == http.StatusUnauthorized:
			msg = "Unauthorized"
		case statusCode == http.StatusForbidden:
			msg = "Forbidden"
		case statusCode == http.StatusNotFound:
			msg = "Not Found"
		case statusCode == http.StatusConflict:
			msg = "Conflict"
		default:
			msg = "Client Error"
		}
		span.SetStatus(codes.Error, msg)
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
	}
}
