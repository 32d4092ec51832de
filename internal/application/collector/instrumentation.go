package collector

import (
	"context"
	"sync"

	"github.com/fllarpy/api-debugger/domain/debug"
)

// contextKey is an unexported type for keys defined in this package.
type contextKey struct{}

var instrumentationKey = contextKey{}

// Instrumentation is the debug state of exactly one request. It is allocated
// when the request enters the middleware and drained when the response is
// finalized; nothing recorded afterwards is kept.
//
// The mutex only matters for handlers that fan out work to goroutines sharing
// the request context.
type Instrumentation struct {
	mu        sync.Mutex
	queries   []debug.CollectedQuery
	dumps     []any
	finalized bool
}

// WithInstrumentation returns a context carrying a fresh Instrumentation.
// Handlers get it by having the middleware attach it to the *http.Request.
func WithInstrumentation(parent context.Context) context.Context {
	return context.WithValue(parent, instrumentationKey, &Instrumentation{})
}

// FromContext retrieves the request instrumentation or nil if the context was
// not initialised via WithInstrumentation.
func FromContext(ctx context.Context) *Instrumentation {
	inst, _ := ctx.Value(instrumentationKey).(*Instrumentation)
	return inst
}

// Queries returns a copy of the queries collected so far.
func (i *Instrumentation) Queries() []debug.CollectedQuery {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]debug.CollectedQuery(nil), i.queries...)
}

// Dumps returns a copy of the values dumped so far.
func (i *Instrumentation) Dumps() []any {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]any(nil), i.dumps...)
}

// Finalized reports whether the request state has already been drained.
func (i *Instrumentation) Finalized() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.finalized
}

func (i *Instrumentation) addQuery(q debug.CollectedQuery) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.finalized {
		return
	}
	i.queries = append(i.queries, q)
}

func (i *Instrumentation) addDumps(values []any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.finalized {
		return
	}
	i.dumps = append(i.dumps, values...)
}

// drain hands out the collected state and resets it. Only the first call
// returns ok.
func (i *Instrumentation) drain() (queries []debug.CollectedQuery, dumps []any, ok bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.finalized {
		return nil, nil, false
	}
	i.finalized = true
	queries, dumps = i.queries, i.dumps
	i.queries, i.dumps = nil, nil
	return queries, dumps, true
}
