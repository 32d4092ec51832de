// Package http_responder writes structured JSON responses for handlers that
// build their payload as a value instead of raw bytes. The payload is wrapped
// in a debug.Envelope next to the request's debug section, so nothing has to
// be parsed back out of the body.
//
// A response written through this package finalizes the request, the
// middleware then leaves the body alone.
package http_responder
