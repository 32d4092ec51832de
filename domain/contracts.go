package domain

import (
	"context"
	"net/http"

	"github.com/fllarpy/api-debugger/domain/debug"
)

// QueryHook receives query-executed notifications.
type QueryHook interface {
	OnQueryExecuted(ctx context.Context, event debug.QueryEvent)
}

// CompletionHook is called once per request, after the handler has produced
// its response and before any byte of it reaches the client.
type CompletionHook interface {
	OnRequestCompleted(r *http.Request, resp Response) error
}

// Hooks is the full contract a host calls into.
type Hooks interface {
	QueryHook
	CompletionHook
}

// QuerySource is a stream of query-executed notifications. Subscribe returns
// a function that removes the hook again.
type QuerySource interface {
	Subscribe(hook QueryHook) (unsubscribe func())
}

// Response is the in-flight response handed to a CompletionHook.
type Response interface {
	Body() []byte
	SetBody(body []byte)
	ContentType() string
}
