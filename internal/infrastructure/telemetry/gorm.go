package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const queryStartKey = "telemetry:query_start"

// DBConfig controls the GORM instrumentation.
type DBConfig struct {
	// TracingEnabled registers the otelgorm span plugin
	TracingEnabled bool
	// LogFullSQL keeps query variables in spans and slow query logs (dev only)
	LogFullSQL bool
	// DBSystem is reported as db.system on spans
	DBSystem           string
	SlowQueryThreshold time.Duration
	PoolStatsInterval  time.Duration
}

// DefaultDBConfig returns the production defaults.
func DefaultDBConfig() DBConfig {
	return DBConfig{
		DBSystem:           "postgresql",
		SlowQueryThreshold: 200 * time.Millisecond,
		PoolStatsInterval:  15 * time.Second,
	}
}

// DBMetrics records query counts, latencies and connection pool usage.
type DBMetrics struct {
	poolConnections    *Gauge
	poolConnectionsMax *Gauge
	queryTotal         *Counter
	queryDuration      *Histogram
	slowQueryTotal     *Counter

	config   DBConfig
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// InstrumentDB registers tracing and, when meter is non-nil, query metrics on
// db. The returned DBMetrics is nil without a meter.
func InstrumentDB(db *gorm.DB, cfg DBConfig, meter metric.Meter, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultDBConfig()
	if cfg.DBSystem == "" {
		cfg.DBSystem = def.DBSystem
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = def.SlowQueryThreshold
	}
	if cfg.PoolStatsInterval <= 0 {
		cfg.PoolStatsInterval = def.PoolStatsInterval
	}

	if cfg.TracingEnabled {
		opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
		if !cfg.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return nil, err
		}
		logger.Info("Database tracing enabled", zap.String("db_system", cfg.DBSystem))
	}

	if meter == nil {
		return nil, nil
	}

	m, err := newDBMetrics(meter, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := m.registerCallbacks(db); err != nil {
		return nil, err
	}
	return m, nil
}

func newDBMetrics(meter metric.Meter, cfg DBConfig, logger *zap.Logger) (*DBMetrics, error) {
	m := &DBMetrics{config: cfg, logger: logger, stopCh: make(chan struct{})}

	var err error
	if m.poolConnections, err = NewGauge(meter, "db_pool_connections",
		"Number of connections in the pool by state", "{connection}"); err != nil {
		return nil, err
	}
	if m.poolConnectionsMax, err = NewGauge(meter, "db_pool_connections_max",
		"Maximum number of open connections", "{connection}"); err != nil {
		return nil, err
	}
	if m.queryTotal, err = NewCounter(meter, "db_query_total",
		"Total number of database queries by operation", "{query}"); err != nil {
		return nil, err
	}
	if m.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency distribution in seconds",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total",
		"Total number of queries slower than the configured threshold", "{query}"); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DBMetrics) registerCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("telemetry:before_create", m.before),
		cb.Create().After("gorm:create").Register("telemetry:after_create", m.after("INSERT")),
		cb.Query().Before("gorm:query").Register("telemetry:before_query", m.before),
		cb.Query().After("gorm:query").Register("telemetry:after_query", m.after("SELECT")),
		cb.Update().Before("gorm:update").Register("telemetry:before_update", m.before),
		cb.Update().After("gorm:update").Register("telemetry:after_update", m.after("UPDATE")),
		cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", m.before),
		cb.Delete().After("gorm:delete").Register("telemetry:after_delete", m.after("DELETE")),
		cb.Row().Before("gorm:row").Register("telemetry:before_row", m.before),
		cb.Row().After("gorm:row").Register("telemetry:after_row", m.after("")),
		cb.Raw().Before("gorm:raw").Register("telemetry:before_raw", m.before),
		cb.Raw().After("gorm:raw").Register("telemetry:after_raw", m.after("")),
	)
}

func (m *DBMetrics) before(db *gorm.DB) {
	db.InstanceSet(queryStartKey, time.Now())
}

// after returns the callback recording one finished statement. An empty
// operation is derived from the SQL text.
func (m *DBMetrics) after(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(queryStartKey)
		if !ok {
			return
		}
		start, ok := v.(time.Time)
		if !ok {
			return
		}

		op := operation
		if op == "" {
			op = detectOperation(db.Statement.SQL.String())
		}
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		elapsed := time.Since(start)
		m.RecordQuery(ctx, op, db.Statement.Table, elapsed)

		if elapsed > m.config.SlowQueryThreshold {
			fields := []zap.Field{
				zap.String("operation", op),
				zap.String("table", db.Statement.Table),
				zap.Duration("elapsed", elapsed),
				zap.String("trace_id", GetTraceID(ctx)),
			}
			if m.config.LogFullSQL {
				fields = append(fields, zap.String("sql", db.Statement.SQL.String()))
			}
			m.logger.Warn("Slow database query", fields...)
		}
	}
}

// RecordQuery records one finished statement.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, elapsed time.Duration) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "UNKNOWN"
	}
	m.queryTotal.Inc(ctx, AttrDBOperation.String(operation))
	m.queryDuration.RecordDuration(ctx, elapsed, AttrDBOperation.String(operation))

	if elapsed > m.config.SlowQueryThreshold {
		if table == "" {
			table = "unknown"
		}
		m.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
	}
}

// StartPoolStatsCollection records pool usage now and then every
// PoolStatsInterval until Stop is called or ctx is done.
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context, sqlDB *sql.DB) {
	m.collectPoolStats(ctx, sqlDB)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.PoolStatsInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.collectPoolStats(ctx, sqlDB)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *DBMetrics) collectPoolStats(ctx context.Context, sqlDB *sql.DB) {
	stats := sqlDB.Stats()
	m.poolConnectionsMax.Record(ctx, int64(stats.MaxOpenConnections))
	m.poolConnections.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolConnections.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolConnections.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
}

// Stop ends pool stats collection. Safe to call more than once.
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

func detectOperation(sql string) string {
	sql = strings.TrimSpace(sql)
	if i := strings.IndexAny(sql, " \t\n"); i > 0 {
		sql = sql[:i]
	}
	switch op := strings.ToUpper(sql); op {
	case "SELECT", "INSERT", "UPDATE", "DELETE", "WITH":
		return op
	default:
		return "OTHER"
	}
}
