package fetch

// Result carries the outcome of a single fetch-and-decode call.
// Exactly one of the two shapes is ever produced: a success with OK set and
// Error empty, or a failure with Data nil and a non-empty Error diagnostic.
// Data may be nil on success when the response body was empty.
type Result[T any] struct {
	Data  *T     `json:"data"`
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// success builds the OK variant.
func success[T any](data *T) Result[T] {
	return Result[T]{Data: data, OK: true}
}

// failure builds the error variant. The message is a human-readable
// diagnostic, not a machine-parsed code.
func failure[T any](msg string) Result[T] {
	return Result[T]{Error: msg}
}
