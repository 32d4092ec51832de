package tracebridge

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fllarpy/api-debugger/domain"
	"github.com/fllarpy/api-debugger/domain/debug"
)

// Attribute keys carrying the statement of a database client span. Older
// semantic conventions use db.statement, newer ones db.query.text.
const (
	statementKey = "db.statement"
	queryTextKey = "db.query.text"
)

var (
	_ sdktrace.SpanProcessor = (*Bridge)(nil)
	_ domain.QuerySource     = (*Bridge)(nil)
)

// Config tunes the bookkeeping of started spans.
type Config struct {
	// StaleTimeout is how long a started span is remembered without ending.
	StaleTimeout time.Duration
	// SweepInterval is how often stale spans are forgotten.
	SweepInterval time.Duration
}

type pendingSpan struct {
	ctx     context.Context
	started time.Time
}

// Bridge turns finished database client spans into query-executed
// notifications. OnStart sees the context the span was started with, which
// still carries the request instrumentation; OnEnd publishes the statement
// with that context. Only spans named like sql.*.query or sql.*.exec count,
// so prepare and rows spans are not reported twice.
type Bridge struct {
	config Config
	logger *zap.Logger

	mu      sync.Mutex
	pending map[trace.SpanID]pendingSpan
	nextID  uint64
	hooks   []subscription

	stop     chan struct{}
	stopOnce sync.Once
}

type subscription struct {
	id   uint64
	hook domain.QueryHook
}

// New creates a Bridge and starts its sweep routine. Call Shutdown to stop it.
func New(config Config, logger *zap.Logger) *Bridge {
	if config.StaleTimeout <= 0 {
		config.StaleTimeout = 2 * time.Minute
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bridge{
		config:  config,
		logger:  logger,
		pending: make(map[trace.SpanID]pendingSpan),
		stop:    make(chan struct{}),
	}
	go b.startSweepRoutine()
	return b
}

// Subscribe registers hook for database statements.
func (b *Bridge) Subscribe(hook domain.QueryHook) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.hooks = append(b.hooks, subscription{id: id, hook: hook})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.hooks {
			if s.id == id {
				b.hooks = append(b.hooks[:i:i], b.hooks[i+1:]...)
				return
			}
		}
	}
}

// OnStart remembers the context a statement span was started with.
func (b *Bridge) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	if s.SpanKind() != trace.SpanKindClient || !isStatementSpan(s.Name()) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.hooks) == 0 {
		return
	}
	b.pending[s.SpanContext().SpanID()] = pendingSpan{ctx: parent, started: time.Now()}
}

// OnEnd publishes the statement of a successful statement span.
func (b *Bridge) OnEnd(s sdktrace.ReadOnlySpan) {
	b.mu.Lock()
	p, ok := b.pending[s.SpanContext().SpanID()]
	if ok {
		delete(b.pending, s.SpanContext().SpanID())
	}
	hooks := make([]domain.QueryHook, len(b.hooks))
	for i, sub := range b.hooks {
		hooks[i] = sub.hook
	}
	b.mu.Unlock()

	// Failed statements are not reported, same as the driver source.
	if !ok || s.Status().Code == codes.Error {
		return
	}

	statement := statementOf(s)
	if statement == "" {
		return
	}

	event := debug.QueryEvent{
		Template: statement,
		Elapsed:  s.EndTime().Sub(s.StartTime()),
	}
	for _, h := range hooks {
		h.OnQueryExecuted(p.ctx, event)
	}
}

// Shutdown stops the sweep routine. It is safe to call more than once.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.stopOnce.Do(func() { close(b.stop) })
	return nil
}

// ForceFlush does nothing; statements are published as their spans end.
func (b *Bridge) ForceFlush(ctx context.Context) error { return nil }

// Pending reports how many started statement spans have not ended yet.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Bridge) startSweepRoutine() {
	ticker := time.NewTicker(b.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.sweep(time.Now())
		case <-b.stop:
			return
		}
	}
}

func (b *Bridge) sweep(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cleaned := 0
	for id, p := range b.pending {
		if now.Sub(p.started) > b.config.StaleTimeout {
			delete(b.pending, id)
			cleaned++
		}
	}
	if cleaned > 0 {
		b.logger.Debug("forgot stale statement spans", zap.Int("count", cleaned))
	}
}

func isStatementSpan(name string) bool {
	return strings.HasSuffix(name, ".query") || strings.HasSuffix(name, ".exec")
}

func statementOf(s sdktrace.ReadOnlySpan) string {
	var statement string
	for _, attr := range s.Attributes() {
		switch string(attr.Key) {
		case queryTextKey:
			return attr.Value.AsString()
		case statementKey:
			statement = attr.Value.AsString()
		}
	}
	return statement
}
