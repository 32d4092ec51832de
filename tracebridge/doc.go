// Package tracebridge is a query source fed by OpenTelemetry spans. Installed
// as a span processor, it reports every database statement traced by
// otelsql back to the HTTP request whose context started the span.
//
// Spans carry the statement but not its bound parameters, so queries from
// this source are shown as their templates.
package tracebridge
