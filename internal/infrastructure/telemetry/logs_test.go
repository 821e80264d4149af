package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func (e *recordingExporter) bodies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, r.Body().AsString())
	}
	return out
}

func newTestLoggerProvider(t *testing.T) (*LoggerProvider, *recordingExporter) {
	t.Helper()
	exp := &recordingExporter{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return &LoggerProvider{
		provider: provider,
		logger:   zap.NewNop(),
		config:   LogsConfig{Enabled: true, ServiceName: "retail-accounting-sync"},
	}, exp
}

func TestNewLoggerProvider_Disabled(t *testing.T) {
	ctx := t.Context()

	lp, err := NewLoggerProvider(ctx, LogsConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())
	assert.NoError(t, lp.Shutdown(ctx))

	base := zap.NewNop()
	assert.Same(t, base, lp.Bridge(base, zapcore.InfoLevel))
}

func TestLoggerProvider_Bridge(t *testing.T) {
	lp, exp := newTestLoggerProvider(t)
	core, observed := observer.New(zapcore.DebugLevel)

	log := lp.Bridge(zap.New(core), zapcore.InfoLevel)
	log.Debug("token still valid")
	log.Info("synced product", zap.String("kind", "product"))
	log.Error("sync failed")

	assert.Equal(t, 3, observed.Len(), "base core keeps every entry")
	assert.Equal(t, []string{"synced product", "sync failed"}, exp.bodies())
}

func TestLevelFilterCore_With(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	filtered := (&levelFilterCore{Core: core, minLevel: zapcore.WarnLevel}).
		With([]zapcore.Field{zap.String("realm_id", "123")})

	log := zap.New(filtered)
	log.Info("dropped")
	log.Warn("kept")

	require.Equal(t, 1, observed.Len())
	entry := observed.All()[0]
	assert.Equal(t, "kept", entry.Message)
	assert.Equal(t, "123", entry.ContextMap()["realm_id"])
}
