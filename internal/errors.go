package taste

import "errors"

// Sentinel errors for the similar-items domain.
var (
	ErrExhausted         = errors.New("cursor exhausted")
	ErrNotFound          = errors.New("not found")
	ErrItemNotFound      = errors.New("item not found")
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrSinkClosed        = errors.New("sink closed")
	ErrBadRequest        = errors.New("bad request")
)
