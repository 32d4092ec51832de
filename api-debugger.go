package api_debugger

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/fllarpy/api-debugger/config"
	"github.com/fllarpy/api-debugger/domain"
	httpinstrumentation "github.com/fllarpy/api-debugger/instrumentation/http"
	sqlinstrumentation "github.com/fllarpy/api-debugger/instrumentation/sql"
	"github.com/fllarpy/api-debugger/internal/adapters/debugsql"
	"github.com/fllarpy/api-debugger/internal/application/collector"
	"github.com/fllarpy/api-debugger/internal/ports/http_middleware"
	"github.com/fllarpy/api-debugger/internal/ports/http_responder"
	"github.com/fllarpy/api-debugger/tracebridge"
)

const serviceVersion = "1.0.0"

// wrappedDrivers numbers wrapper registrations; database/sql names are
// process-wide and cannot be reused.
var wrappedDrivers atomic.Uint64

// Debugger wires the collector to a query source and to net/http.
type Debugger struct {
	cfg       config.Config
	logger    *zap.Logger
	collector *collector.Collector
	responder *http_responder.Responder

	// driver query source
	notifier  *debugsql.Notifier
	driversMu sync.Mutex
	wrapped   map[string]string

	// tracing query source
	bridge *tracebridge.Bridge
	tp     *sdktrace.TracerProvider
}

// NewDebugger builds a Debugger from cfg. With the tracing query source it
// also installs a global TracerProvider feeding the collector.
func NewDebugger(ctx context.Context, cfg config.Config) (*Debugger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create logger")
	}
	logger = logger.With(zap.String("service", cfg.ServiceName))

	d := &Debugger{
		cfg:     cfg,
		logger:  logger,
		wrapped: make(map[string]string),
	}

	var source domain.QuerySource
	switch cfg.QuerySource {
	case config.QuerySourceTracing:
		d.bridge = tracebridge.New(tracebridge.Config{StaleTimeout: cfg.StaleSpanTimeout}, logger)

		res, err := newResource(cfg.ServiceName, serviceVersion)
		if err != nil {
			_ = d.bridge.Shutdown(ctx)
			return nil, errors.Wrap(err, "failed to create resource")
		}
		d.tp = sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(d.bridge),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(d.tp)
		source = d.bridge
	default:
		d.notifier = debugsql.NewNotifier()
		source = d.notifier
	}

	d.collector = collector.New(source,
		collector.WithLogger(logger),
		collector.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)
	d.responder = http_responder.New(d.collector)

	if cfg.CollectQueries {
		d.collector.EnableQueryCollection()
	}

	logger.Info("API debugger initialized",
		zap.Bool("enabled", cfg.Enabled),
		zap.Bool("collect_queries", cfg.CollectQueries),
		zap.String("query_source", cfg.QuerySource))
	return d, nil
}

// EnableQueryCollection starts attaching executed queries to responses.
// Calling it more than once has no further effect.
func (d *Debugger) EnableQueryCollection() {
	d.collector.EnableQueryCollection()
}

// Middleware attaches the debug section to the JSON responses of next. It is
// a pass-through when the debugger is disabled.
func (d *Debugger) Middleware(next http.Handler) http.Handler {
	return http_middleware.DebugMiddleware(&d.cfg, d.collector, d.logger)(next)
}

// Handler is Middleware plus, for the tracing query source, an otelhttp
// server span named operation around next.
func (d *Debugger) Handler(next http.Handler, operation string) http.Handler {
	if d.tp == nil {
		return d.Middleware(next)
	}
	return httpinstrumentation.NewMiddleware(next, operation, d.Middleware)
}

// OpenDB opens a database whose statements reach the collector: through a
// wrapped driver for the driver source, through otelsql for the tracing
// source. driverName must already be registered with database/sql.
func (d *Debugger) OpenDB(driverName, dataSourceName string) (*sql.DB, error) {
	if d.tp != nil {
		return sqlinstrumentation.Open(driverName, dataSourceName)
	}

	name, err := d.wrapDriver(driverName)
	if err != nil {
		return nil, err
	}
	return sql.Open(name, dataSourceName)
}

// wrapDriver registers, once per driver, a debugsql wrapper and returns its
// name.
func (d *Debugger) wrapDriver(driverName string) (string, error) {
	d.driversMu.Lock()
	defer d.driversMu.Unlock()

	if name, ok := d.wrapped[driverName]; ok {
		return name, nil
	}

	// sql.Open does not connect; it only resolves the driver.
	db, err := sql.Open(driverName, "")
	if err != nil {
		return "", errors.Wrapf(err, "unknown driver %q", driverName)
	}
	realDriver := db.Driver()
	_ = db.Close()

	name := fmt.Sprintf("%s-debug-%d", driverName, wrappedDrivers.Add(1))
	debugsql.Register(name, realDriver, d.notifier)
	d.wrapped[driverName] = name
	return name, nil
}

// Dump adds values to the debug output of the request carried by ctx.
func (d *Debugger) Dump(ctx context.Context, values ...any) {
	d.collector.Dump(ctx, values...)
}

// Respond writes body as a {"body": ..., "debug": ...} envelope.
func (d *Debugger) Respond(w http.ResponseWriter, r *http.Request, status int, body any) {
	d.responder.Respond(w, r, status, body)
}

// Logger returns the debugger's logger.
func (d *Debugger) Logger() *zap.Logger { return d.logger }

// Shutdown detaches the collector and flushes the tracer provider, if any.
func (d *Debugger) Shutdown(ctx context.Context) error {
	d.collector.Close()

	var err error
	if d.tp != nil {
		if shutdownErr := d.tp.Shutdown(ctx); shutdownErr != nil {
			err = errors.Wrap(shutdownErr, "error shutting down tracer provider")
		}
	}
	_ = d.logger.Sync()
	return err
}

// Dump adds values to the debug output of the request carried by ctx. It
// does nothing outside a request handled by a Debugger middleware.
func Dump(ctx context.Context, values ...any) {
	collector.Dump(ctx, values...)
}

func newResource(serviceName, serviceVersion string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
}
