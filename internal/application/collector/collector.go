package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fllarpy/api-debugger/domain"
	"github.com/fllarpy/api-debugger/domain/debug"
)

var _ domain.Hooks = (*Collector)(nil)

// Collector turns query notifications and dumped values into the debug
// section of a response. A single Collector serves the whole process; the
// per-request state lives in the request context (see WithInstrumentation),
// so concurrent requests never see each other's queries.
type Collector struct {
	source  domain.QuerySource
	logger  *zap.Logger
	maxBody int64

	enabled     atomic.Bool
	subMu       sync.Mutex
	unsubscribe func()
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger used to report recovered failures.
func WithLogger(l *zap.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxBodyBytes limits the size of response bodies the collector is
// willing to parse. Zero means no limit.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Collector) { c.maxBody = n }
}

// New returns a Collector that, once query collection is enabled, listens to
// source. source may be nil when only dumps are wanted.
func New(source domain.QuerySource, opts ...Option) *Collector {
	c := &Collector{
		source: source,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnableQueryCollection turns on query collection and subscribes to the query
// source. Further calls do nothing.
func (c *Collector) EnableQueryCollection() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if c.unsubscribe != nil {
		return
	}
	c.enabled.Store(true)
	c.unsubscribe = func() {}
	if c.source != nil {
		c.unsubscribe = c.source.Subscribe(c)
	}
	c.logger.Info("query collection enabled")
}

// QueryCollectionEnabled reports whether EnableQueryCollection was called.
func (c *Collector) QueryCollectionEnabled() bool {
	return c.enabled.Load()
}

// Close detaches the collector from its query source. Query collection stays
// enabled, so responses keep an empty sql section.
func (c *Collector) Close() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = func() {}
	}
}

// OnQueryExecuted records an executed query against the request found in ctx.
// Rendering problems never surface: the raw template is kept instead.
func (c *Collector) OnQueryExecuted(ctx context.Context, event debug.QueryEvent) {
	if !c.enabled.Load() {
		return
	}
	inst := FromContext(ctx)
	if inst == nil {
		return
	}

	rendered, err := RenderQuery(event.Template, event.Parameters)
	if err != nil {
		c.logger.Debug("query kept unrendered", zap.String("template", event.Template), zap.Error(err))
	}

	inst.addQuery(debug.CollectedQuery{
		Template:      event.Template,
		Parameters:    event.Parameters,
		ElapsedMillis: event.ElapsedMillis(),
		Rendered:      rendered,
	})
}

// Dump adds values, in argument order, to the debug output of the request
// found in ctx. Any value is accepted.
func (c *Collector) Dump(ctx context.Context, values ...any) {
	Dump(ctx, values...)
}

// Dump is Collector.Dump for callers without a Collector at hand.
func Dump(ctx context.Context, values ...any) {
	if inst := FromContext(ctx); inst != nil {
		inst.addDumps(values)
	}
}

// Finalize drains the request state found in ctx and builds its debug
// section. ok is false when there is nothing to report, when ctx carries no
// instrumentation, or when the request was already finalized.
func (c *Collector) Finalize(ctx context.Context) (section *debug.Section, ok bool) {
	inst := FromContext(ctx)
	if inst == nil {
		return nil, false
	}
	queries, dumps, ok := inst.drain()
	if !ok {
		return nil, false
	}

	collectQueries := c.enabled.Load()
	if !collectQueries && len(dumps) == 0 {
		return nil, false
	}

	section = &debug.Section{}
	if collectQueries {
		rendered := make([]string, 0, len(queries))
		for _, q := range queries {
			rendered = append(rendered, q.Rendered)
		}
		section.SQL = &debug.SQLSection{
			TotalQueries: len(rendered),
			Queries:      rendered,
		}
	}
	if len(dumps) > 0 {
		section.Dump = make([]json.RawMessage, len(dumps))
		for i, v := range dumps {
			section.Dump[i] = encodeDump(v)
		}
	}
	return section, true
}

// OnRequestCompleted stores the debug section of r in the JSON object held by
// resp. On error resp is left untouched; callers are expected to log and
// carry on delivering the original response.
func (c *Collector) OnRequestCompleted(r *http.Request, resp domain.Response) error {
	section, ok := c.Finalize(r.Context())
	if !ok {
		return nil
	}

	body, err := augment(resp.ContentType(), resp.Body(), section, c.maxBody)
	if err != nil {
		return err
	}
	resp.SetBody(body)
	return nil
}
