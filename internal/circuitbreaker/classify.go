package circuitbreaker

import (
	"context"
	"errors"
	"os"

	taste "github.com/eugener/tasteworker/internal"
)

// httpStatusError is implemented by engine errors that carry an HTTP status,
// such as remote.APIError.
type httpStatusError interface {
	HTTPStatus() int
}

// ClassifyError returns the weight of err for breaker tracking.
//
//	nil, unknown item, 4xx except 429 -> 0 (engine is healthy)
//	429                               -> 0.5
//	5xx, other errors                 -> 1.0
//	deadline exceeded                 -> 1.5
//	context.Canceled                  -> -1 (ignored)
func ClassifyError(err error) float64 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return -1
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return 1.5
	case errors.Is(err, taste.ErrItemNotFound):
		return 0
	}

	var he httpStatusError
	if errors.As(err, &he) {
		return classifyStatus(he.HTTPStatus())
	}
	return 1.0
}

func classifyStatus(code int) float64 {
	switch {
	case code == 429:
		return 0.5
	case code >= 500:
		return 1.0
	default:
		return 0
	}
}
