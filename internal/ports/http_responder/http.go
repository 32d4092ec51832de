package http_responder

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/fllarpy/api-debugger/domain/debug"
)

// Finalizer yields the debug section of the request found in ctx, at most
// once per request.
type Finalizer interface {
	Finalize(ctx context.Context) (*debug.Section, bool)
}

// Responder writes envelopes.
type Responder struct {
	finalizer Finalizer
}

// New returns a Responder taking debug sections from f.
func New(f Finalizer) *Responder {
	return &Responder{finalizer: f}
}

// Respond writes body wrapped in a debug.Envelope with the given status.
func (rs *Responder) Respond(w http.ResponseWriter, r *http.Request, status int, body any) {
	envelope := debug.Envelope{Body: body}
	if section, ok := rs.finalizer.Finalize(r.Context()); ok {
		envelope.Debug = section
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(envelope); err != nil {
		// The payload is the handler's; a failure here is a server-side problem.
		http.Error(w, "Failed to encode response to JSON", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(bytes.TrimRight(buf.Bytes(), "\n"))
}

// Handler adapts a function producing a status and payload into an
// http.Handler that responds through rs. A non-nil error becomes a 500 with
// the error message as body.
func (rs *Responder) Handler(fn func(r *http.Request) (int, any, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, body, err := fn(r)
		if err != nil {
			rs.Respond(w, r, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		rs.Respond(w, r, status, body)
	})
}
