package debughttp

import (
	"bytes"
	"net/http"

	"github.com/fllarpy/api-debugger/domain"
)

var (
	_ domain.Response = (*bufferedResponse)(nil)
	_ http.Flusher    = (*bufferedResponse)(nil)
)

// bufferedResponse is an http.ResponseWriter that keeps the status and body
// in memory. Headers go straight to the underlying writer's header map, they
// are only sent when flushTo is called.
type bufferedResponse struct {
	w           http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        bytes.Buffer
	replaced    []byte
}

func newBufferedResponse(w http.ResponseWriter) *bufferedResponse {
	return &bufferedResponse{w: w, statusCode: http.StatusOK}
}

// Header returns the header map of the underlying writer.
func (b *bufferedResponse) Header() http.Header { return b.w.Header() }

// Unwrap exposes the underlying writer to http.ResponseController, so that
// handlers can still hijack the connection or set deadlines.
func (b *bufferedResponse) Unwrap() http.ResponseWriter { return b.w }

// WriteHeader records the status. Only the first call counts.
func (b *bufferedResponse) WriteHeader(code int) {
	if b.wroteHeader {
		return
	}
	b.wroteHeader = true
	b.statusCode = code
}

// Write appends p to the buffered body.
func (b *bufferedResponse) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	return b.body.Write(p)
}

// Body returns the response body as produced by the handler, or the body set
// by SetBody.
func (b *bufferedResponse) Body() []byte {
	if b.replaced != nil {
		return b.replaced
	}
	return b.body.Bytes()
}

// SetBody replaces the body that flushTo will send.
func (b *bufferedResponse) SetBody(body []byte) { b.replaced = body }

// Flush does nothing: the body is sent in one piece by flushTo. It lets
// handlers that assert http.Flusher keep working.
func (b *bufferedResponse) Flush() {}

// ContentType returns the Content-Type header set by the handler.
func (b *bufferedResponse) ContentType() string { return b.w.Header().Get("Content-Type") }

// flushTo sends the buffered response. A replaced body invalidates any
// Content-Length the handler may have set.
func (b *bufferedResponse) flushTo(w http.ResponseWriter) error {
	if b.replaced != nil {
		w.Header().Del("Content-Length")
	}
	w.WriteHeader(b.statusCode)
	_, err := w.Write(b.Body())
	return err
}
