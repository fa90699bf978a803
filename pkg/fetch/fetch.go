// Package fetch issues a single HTTP GET and decodes the JSON response body
// into a caller-specified shape, folding every failure mode into the returned
// Result instead of surfacing errors or panics.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tomasvtx/jsonfetch/pkg/httpclient"
)

const defaultTimeout = 15 * time.Second

var (
	defaultClientOnce sync.Once
	defaultClient     httpclient.Client
)

// DefaultClient returns the process-wide shared HTTP client used when callers
// pass a nil client. It is created once and reused so connection pooling
// spans calls.
func DefaultClient() httpclient.Client {
	defaultClientOnce.Do(func() {
		defaultClient = httpclient.NewRestyClient(defaultTimeout)
	})
	return defaultClient
}

// JSON performs one GET against url and decodes the 2xx response body into T.
//
// The outcome is always reported through the Result, never through an error
// or panic: transport failures (DNS, refused connections, timeouts, TLS) and
// malformed payloads populate Error with the failure description; a non-2xx
// status populates Error with the status code and reason phrase without
// touching the body. URL validation is delegated to the transport, so a
// malformed url surfaces as a transport failure.
//
// A nil client uses DefaultClient. Calls are independent and may run
// concurrently.
func JSON[T any](ctx context.Context, client httpclient.Client, url string) Result[T] {
	return JSONWithHeaders[T](ctx, client, url, nil)
}

// JSONWithHeaders behaves like JSON and additionally sends the given request
// headers.
func JSONWithHeaders[T any](ctx context.Context, client httpclient.Client, url string, headers map[string]string) Result[T] {
	if client == nil {
		client = DefaultClient()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := client.Get(ctx, url, headers)
	if err != nil {
		return failure[T](err.Error())
	}

	if !statusSuccess(resp.StatusCode()) {
		return failure[T](statusLine(resp))
	}

	body := bytes.TrimSpace(resp.Body())
	if len(body) == 0 {
		return success[T](nil)
	}

	var decoded T
	if err := json.Unmarshal(body, &decoded); err != nil {
		return failure[T](fmt.Sprintf("decode response body: %v", err))
	}
	return success(&decoded)
}

// statusSuccess reports whether code is in the 2xx range.
func statusSuccess(code int) bool { return code >= 200 && code <= 299 }

// statusLine renders "<code> <reason phrase>" for the non-2xx diagnostic,
// preferring the status line the server actually sent.
func statusLine(resp httpclient.Response) string {
	if s := resp.Status(); s != "" {
		return s
	}
	code := resp.StatusCode()
	reason := http.StatusText(code)
	if reason == "" {
		return fmt.Sprintf("%d", code)
	}
	return fmt.Sprintf("%d %s", code, reason)
}
