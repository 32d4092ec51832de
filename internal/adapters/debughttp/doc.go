// Package debughttp adapts the collector to net/http. Its middleware gives
// every request its own instrumentation scope, holds the handler's response
// back until the handler returns, lets the collector augment the buffered
// body, and only then writes it to the client.
//
// Augmentation failures are logged and never change what the client
// receives: the original status, headers and body are delivered.
//
// Because the body is held back, Flush on the wrapped writer is a no-op and
// nothing reaches the client before the handler returns. Streaming routes (server-sent events, long polls)
// should be mounted outside the middleware. Hijacking through
// http.ResponseController still works; the middleware then has nothing left
// to write.
package debughttp
