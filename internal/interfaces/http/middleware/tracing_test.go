package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

// setupTestTracer sets up a test tracer provider and returns the span recorder.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
	})

	return sr
}

func testTracingConfig() TracingConfig {
	return TracingConfig{Enabled: true, ServiceName: "test-service"}
}

func findSpan(t *testing.T, sr *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, span := range sr.Ended() {
		if span.Name() == name {
			return span
		}
	}
	require.FailNow(t, "span not found", name)
	return nil
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (string, bool) {
	for _, attr := range span.Attributes() {
		if attr.Key == key {
			return attr.Value.AsString(), true
		}
	}
	return "", false
}

func TestTracingWithConfig_Disabled(t *testing.T) {
	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: false, ServiceName: "test-service"}))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTracingWithConfig_Enabled(t *testing.T) {
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(TracingWithConfig(testTracingConfig()))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	findSpan(t, sr, "GET /test")
}

func TestTracingAttributeInjector(t *testing.T) {
	t.Run("request id", func(t *testing.T) {
		sr := setupTestTracer(t)

		router := gin.New()
		router.Use(RequestID(), TracingWithConfig(testTracingConfig()), TracingAttributeInjector())
		router.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "ok"})
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(RequestIDHeader, "test-request-id-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		value, ok := spanAttr(findSpan(t, sr, "GET /test"), "request_id")
		assert.True(t, ok, "request_id attribute not found in span")
		assert.Equal(t, "test-request-id-123", value)
	})

	t.Run("entity kind path parameter", func(t *testing.T) {
		sr := setupTestTracer(t)

		router := gin.New()
		router.Use(TracingWithConfig(testTracingConfig()), TracingAttributeInjector())
		router.POST("/sync/:kind", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "ok"})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync/products", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		value, ok := spanAttr(findSpan(t, sr, "POST /sync/:kind"), "accounting.kind")
		assert.True(t, ok, "accounting.kind attribute not found in span")
		assert.Equal(t, "products", value)
	})

	t.Run("no recording span", func(t *testing.T) {
		otel.SetTracerProvider(noop.NewTracerProvider())

		router := gin.New()
		router.Use(TracingAttributeInjector())
		router.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "ok"})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestSpanErrorMarker(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		description string
	}{
		{"bad request", http.StatusBadRequest, "Client Error"},
		{"unauthorized", http.StatusUnauthorized, "Unauthorized"},
		{"forbidden", http.StatusForbidden, "Forbidden"},
		{"not found", http.StatusNotFound, "Not Found"},
		{"conflict", http.StatusConflict, "Conflict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := setupTestTracer(t)

			router := gin.New()
			router.Use(TracingWithConfig(testTracingConfig()), SpanErrorMarker())
			router.GET("/test", func(c *gin.Context) {
				c.JSON(tt.status, gin.H{"error": tt.name})
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

			assert.Equal(t, tt.status, w.Code)
			span := findSpan(t, sr, "GET /test")
			assert.Equal(t, codes.Error, span.Status().Code)
			assert.Equal(t, tt.description, span.Status().Description)
		})
	}

	t.Run("server error", func(t *testing.T) {
		sr := setupTestTracer(t)

		router := gin.New()
		router.Use(TracingWithConfig(testTracingConfig()), SpanErrorMarker())
		router.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "upstream"})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		// otelgin may set the description itself for 5xx
		assert.Equal(t, codes.Error, findSpan(t, sr, "GET /test").Status().Code)
	})

	t.Run("success leaves status unset", func(t *testing.T) {
		sr := setupTestTracer(t)

		router := gin.New()
		router.Use(TracingWithConfig(testTracingConfig()), SpanErrorMarker())
		router.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "ok"})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.NotEqual(t, codes.Error, findSpan(t, sr, "GET /test").Status().Code)
	})

	t.Run("no recording span", func(t *testing.T) {
		otel.SetTracerProvider(noop.NewTracerProvider())

		router := gin.New()
		router.Use(SpanErrorMarker())
		router.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "error"})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()

	assert.Equal(t, "retail-accounting-sync", cfg.ServiceName)
	assert.True(t, cfg.Enabled)
}

func TestTracing_DefaultConfig(t *testing.T) {
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(Tracing())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, sr.Ended())
}
