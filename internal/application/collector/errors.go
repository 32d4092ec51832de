package collector

import "github.com/cockroachdb/errors"

// Augmentation errors. None of them is ever allowed to change the response
// that reaches the client.
var (
	// ErrMalformedResponseBody indicates the response body is not a JSON object.
	ErrMalformedResponseBody = errors.New("collector: malformed response body")

	// ErrBodyTooLarge indicates the response body exceeds the configured
	// augmentation limit.
	ErrBodyTooLarge = errors.New("collector: response body too large to augment")
)

// Rendering errors.
var (
	// ErrSubstitutionMismatch indicates the number of placeholders in a query
	// template differs from the number of bound parameters.
	ErrSubstitutionMismatch = errors.New("collector: placeholder and parameter counts differ")
)
