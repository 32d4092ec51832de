package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/fllarpy/api-debugger/domain"
	"github.com/fllarpy/api-debugger/domain/debug"
)

// fakeSource counts subscriptions and lets tests publish events directly.
type fakeSource struct {
	mu    sync.Mutex
	hooks []domain.QueryHook
	calls int
}

func (s *fakeSource) Subscribe(hook domain.QueryHook) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.hooks = append(s.hooks, hook)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.hooks = nil
	}
}

func (s *fakeSource) publish(ctx context.Context, template string, params ...any) {
	s.mu.Lock()
	hooks := append([]domain.QueryHook(nil), s.hooks...)
	s.mu.Unlock()
	for _, h := range hooks {
		h.OnQueryExecuted(ctx, debug.QueryEvent{Template: template, Parameters: params, Elapsed: time.Millisecond})
	}
}

// fakeResponse is a minimal domain.Response.
type fakeResponse struct {
	body        []byte
	contentType string
	sets        int
}

func (r *fakeResponse) Body() []byte        { return r.body }
func (r *fakeResponse) SetBody(b []byte)    { r.body = b; r.sets++ }
func (r *fakeResponse) ContentType() string { return r.contentType }

func newJSONResponse(body string) *fakeResponse {
	return &fakeResponse{body: []byte(body), contentType: "application/json"}
}

func newRequest() *http.Request {
	req := httptest.NewRequest("GET", "/users", nil)
	return req.WithContext(WithInstrumentation(req.Context()))
}

func TestCollector_NothingToReport(t *testing.T) {
	c := New(&fakeSource{})
	req := newRequest()
	original := `{"b":1,  "a":[1,2]}`
	resp := newJSONResponse(original)

	require.NoError(t, c.OnRequestCompleted(req, resp))

	assert.Equal(t, original, string(resp.body), "body should be byte-for-byte unchanged")
	assert.Zero(t, resp.sets, "SetBody should not be called")
}

func TestCollector_DumpOrder(t *testing.T) {
	c := New(nil)
	req := newRequest()
	ctx := req.Context()

	c.Dump(ctx, "first", 2)
	c.Dump(ctx, map[string]any{"k": "v"}, []int{3, 4}, nil, true)

	resp := newJSONResponse(`{"data":"ok"}`)
	require.NoError(t, c.OnRequestCompleted(req, resp))

	var out struct {
		Data  string `json:"data"`
		Debug struct {
			SQL  *debug.SQLSection `json:"sql"`
			Dump []any             `json:"dump"`
		} `json:"debug"`
	}
	require.NoError(t, json.Unmarshal(resp.body, &out))

	assert.Equal(t, "ok", out.Data)
	assert.Nil(t, out.Debug.SQL, "sql should be null when query collection is disabled")
	assert.Equal(t, []any{"first", float64(2), map[string]any{"k": "v"}, []any{float64(3), float64(4)}, nil, true}, out.Debug.Dump)
}

func TestCollector_UnencodableDump(t *testing.T) {
	cyclicMap := map[string]any{"name": "root"}
	cyclicMap["self"] = cyclicMap
	cyclicSlice := make([]any, 1)
	cyclicSlice[0] = cyclicSlice

	testCases := []struct {
		name     string
		value    any
		expected string
	}{
		{"Channel", make(chan int), "<unsupported type chan int>"},
		{"Func", func() {}, "<unsupported type func()>"},
		{"Cyclic map", cyclicMap, "<unsupported value map[string]interface {}: encountered a cycle via map[string]interface {}>"},
		{"Cyclic slice", cyclicSlice, "<unsupported value []interface {}: encountered a cycle via []interface {}>"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(nil)
			req := newRequest()
			c.Dump(req.Context(), tc.value, "after")

			resp := newJSONResponse(`{"ok":true}`)
			require.NoError(t, c.OnRequestCompleted(req, resp))

			assert.True(t, gjson.GetBytes(resp.body, "ok").Bool(), "the original body should be kept")
			dump := gjson.GetBytes(resp.body, "debug.dump").Array()
			require.Len(t, dump, 2)
			assert.Equal(t, gjson.String, dump[0].Type, "unencodable values should be reported as strings")
			assert.Equal(t, tc.expected, dump[0].String())
			assert.Equal(t, "after", dump[1].String())
		})
	}
}

func TestCollector_Queries(t *testing.T) {
	source := &fakeSource{}
	c := New(source)
	c.EnableQueryCollection()

	req := newRequest()
	ctx := req.Context()
	source.publish(ctx, "SELECT * FROM t WHERE id = ? AND pct > ?", 5, 10)
	source.publish(ctx, "SELECT 1")
	source.publish(ctx, "SELECT ? FROM t", 1, 2)

	resp := newJSONResponse(`{"data":[]}`)
	require.NoError(t, c.OnRequestCompleted(req, resp))

	assert.Equal(t, int64(3), gjson.GetBytes(resp.body, "debug.sql.total_queries").Int())
	queries := gjson.GetBytes(resp.body, "debug.sql.queries").Array()
	require.Len(t, queries, 3)
	assert.Equal(t, "SELECT * FROM t WHERE id = '5' AND pct > '10';", queries[0].String())
	assert.Equal(t, "SELECT 1;", queries[1].String())
	assert.Equal(t, "SELECT ? FROM t", queries[2].String(), "mismatched parameters should fall back to the template")
	assert.Equal(t, gjson.Null, gjson.GetBytes(resp.body, "debug.dump").Type, "dump should be null without dumped values")
}

func TestCollector_EnableTwiceSubscribesOnce(t *testing.T) {
	source := &fakeSource{}
	c := New(source)

	c.EnableQueryCollection()
	c.EnableQueryCollection()

	assert.Equal(t, 1, source.calls, "Subscribe should be called exactly once")
	assert.True(t, c.QueryCollectionEnabled())

	req := newRequest()
	source.publish(req.Context(), "SELECT 1")
	assert.Len(t, FromContext(req.Context()).Queries(), 1, "a single execution should be logged once")
}

func TestCollector_DisabledIgnoresQueries(t *testing.T) {
	c := New(&fakeSource{})
	req := newRequest()

	c.OnQueryExecuted(req.Context(), debug.QueryEvent{Template: "SELECT 1"})

	assert.Empty(t, FromContext(req.Context()).Queries())
}

func TestCollector_NoLeakAcrossRequests(t *testing.T) {
	source := &fakeSource{}
	c := New(source)
	c.EnableQueryCollection()

	reqA := newRequest()
	for i := 0; i < 3; i++ {
		source.publish(reqA.Context(), "SELECT ?", i)
	}
	respA := newJSONResponse(`{}`)
	require.NoError(t, c.OnRequestCompleted(reqA, respA))
	assert.Equal(t, int64(3), gjson.GetBytes(respA.body, "debug.sql.total_queries").Int())

	reqB := newRequest()
	respB := newJSONResponse(`{}`)
	require.NoError(t, c.OnRequestCompleted(reqB, respB))

	assert.JSONEq(t, `{"debug":{"sql":{"total_queries":0,"queries":[]},"dump":null}}`, string(respB.body))
}

func TestCollector_ConcurrentRequests(t *testing.T) {
	source := &fakeSource{}
	c := New(source)
	c.EnableQueryCollection()

	const requests = 20
	var wg sync.WaitGroup
	bodies := make([][]byte, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := newRequest()
			for j := 0; j <= i; j++ {
				source.publish(req.Context(), "SELECT ?", i)
			}
			resp := newJSONResponse(`{}`)
			assert.NoError(t, c.OnRequestCompleted(req, resp))
			bodies[i] = resp.body
		}(i)
	}
	wg.Wait()

	for i, body := range bodies {
		assert.Equal(t, int64(i+1), gjson.GetBytes(body, "debug.sql.total_queries").Int(), "request %d should only see its own queries", i)
	}
}

func TestCollector_FinalizeOnce(t *testing.T) {
	c := New(nil)
	req := newRequest()
	c.Dump(req.Context(), "value")

	section, ok := c.Finalize(req.Context())
	require.True(t, ok)
	require.NotNil(t, section)

	resp := newJSONResponse(`{}`)
	require.NoError(t, c.OnRequestCompleted(req, resp))
	assert.Equal(t, `{}`, string(resp.body), "a finalized request should not be augmented again")

	c.Dump(req.Context(), "late")
	assert.Empty(t, FromContext(req.Context()).Dumps(), "values dumped after finalization should be dropped")
}

func TestCollector_WithoutInstrumentation(t *testing.T) {
	c := New(nil)
	c.EnableQueryCollection()
	req := httptest.NewRequest("GET", "/", nil)

	c.Dump(req.Context(), "ignored")
	resp := newJSONResponse(`{"a":1}`)
	require.NoError(t, c.OnRequestCompleted(req, resp))

	assert.Equal(t, `{"a":1}`, string(resp.body))
}

func TestCollector_KeyPlacement(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		expected string
	}{
		{"Appended last", `{"z":1,"a":2}`, `{"z":1,"a":2,"debug":{"sql":null,"dump":["v"]}}`},
		{"Overwritten in place", `{"debug":"old","a":2}`, `{"debug":{"sql":null,"dump":["v"]},"a":2}`},
		{"Empty object", `{}`, `{"debug":{"sql":null,"dump":["v"]}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(nil)
			req := newRequest()
			c.Dump(req.Context(), "v")

			resp := newJSONResponse(tc.body)
			require.NoError(t, c.OnRequestCompleted(req, resp))
			assert.Equal(t, tc.expected, string(resp.body))
		})
	}
}

func TestCollector_MalformedBody(t *testing.T) {
	testCases := []struct {
		name        string
		body        string
		contentType string
		expected    error
	}{
		{"Invalid JSON", `{"a":`, "application/json", ErrMalformedResponseBody},
		{"Array", `[1,2,3]`, "application/json", ErrMalformedResponseBody},
		{"String", `"text"`, "application/json", ErrMalformedResponseBody},
		{"Empty", ``, "", ErrMalformedResponseBody},
		{"HTML", `<html></html>`, "text/html; charset=utf-8", ErrMalformedResponseBody},
		{"Too large", `{"a":"` + strings.Repeat("x", 64) + `"}`, "application/json", ErrBodyTooLarge},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(nil, WithMaxBodyBytes(32))
			req := newRequest()
			c.Dump(req.Context(), "v")

			resp := &fakeResponse{body: []byte(tc.body), contentType: tc.contentType}
			err := c.OnRequestCompleted(req, resp)

			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.expected), "unexpected error: %v", err)
			assert.Equal(t, tc.body, string(resp.body), "body should be left untouched")
			assert.Zero(t, resp.sets)
		})
	}
}

func TestCollector_JSONContentTypes(t *testing.T) {
	for _, ct := range []string{"", "application/json", "application/json; charset=utf-8", "application/problem+json"} {
		t.Run(ct, func(t *testing.T) {
			c := New(nil)
			req := newRequest()
			c.Dump(req.Context(), 1)

			resp := &fakeResponse{body: []byte(`{}`), contentType: ct}
			require.NoError(t, c.OnRequestCompleted(req, resp))
			assert.Equal(t, 1, resp.sets)
		})
	}
}

func TestCollector_QueriesAreNotHTMLEscaped(t *testing.T) {
	source := &fakeSource{}
	c := New(source)
	c.EnableQueryCollection()

	req := newRequest()
	source.publish(req.Context(), "SELECT * FROM t WHERE a > ? AND b < ?", 1, 2)

	resp := newJSONResponse(`{}`)
	require.NoError(t, c.OnRequestCompleted(req, resp))
	assert.Contains(t, string(resp.body), `a > '1' AND b < '2';`)
}
