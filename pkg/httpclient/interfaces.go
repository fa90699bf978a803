package httpclient

import "context"

// Response is a minimal HTTP response contract.
type Response interface {
	Body() []byte
	StatusCode() int
	// Status returns the full status line, e.g. "404 Not Found".
	Status() string
}

// Client abstracts HTTP calls so callers can inject mocks or different transports.
// Implementations must be safe for concurrent use by multiple in-flight requests.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
}
