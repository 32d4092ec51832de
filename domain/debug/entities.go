package debug

import (
	"encoding/json"
	"time"
)

// --- Notifications ---

// QueryEvent is the payload of a query-executed notification.
type QueryEvent struct {
	Template   string
	Parameters []any
	Elapsed    time.Duration
}

// ElapsedMillis returns the execution time as fractional milliseconds.
func (e QueryEvent) ElapsedMillis() float64 {
	return float64(e.Elapsed) / float64(time.Millisecond)
}

// CollectedQuery is one executed query observed during the current request.
type CollectedQuery struct {
	Template      string
	Parameters    []any
	ElapsedMillis float64
	Rendered      string
}

// --- Response structures ---

// Section is the value stored under the "debug" key of an augmented response.
// Both fields marshal to null when they carry nothing.
type Section struct {
	SQL  *SQLSection       `json:"sql"`
	Dump []json.RawMessage `json:"dump"`
}

// SQLSection lists the rendered queries of a request in execution order.
type SQLSection struct {
	TotalQueries int      `json:"total_queries"`
	Queries      []string `json:"queries"`
}

// Envelope is a structured response carrying the handler payload next to the
// debug section, for handlers that build their response through the debugger
// instead of writing raw bytes.
type Envelope struct {
	Body  any      `json:"body"`
	Debug *Section `json:"debug,omitempty"`
}
