package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"

	taste "github.com/eugener/tasteworker/internal"
)

type statusError struct {
	code int
}

func (e *statusError) Error() string   { return fmt.Sprintf("HTTP %d", e.code) }
func (e *statusError) HTTPStatus() int { return e.code }

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want float64
	}{
		{"nil", nil, 0},
		{"429", &statusError{429}, 0.5},
		{"500", &statusError{500}, 1.0},
		{"503", &statusError{503}, 1.0},
		{"400", &statusError{400}, 0},
		{"404", &statusError{404}, 0},
		{"item_not_found", fmt.Errorf("item 7: %w", taste.ErrItemNotFound), 0},
		{"cancelled", context.Canceled, -1},
		{"context_deadline", context.DeadlineExceeded, 1.5},
		{"os_deadline", os.ErrDeadlineExceeded, 1.5},
		{"wrapped_deadline", fmt.Errorf("wrap: %w", context.DeadlineExceeded), 1.5},
		{"network_error", &net.OpError{Op: "dial", Err: errors.New("refused")}, 1.0},
		{"generic_error", errors.New("something broke"), 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyError_WrappedStatus(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("engine: %w", &statusError{502})
	if got := ClassifyError(wrapped); got != 1.0 {
		t.Errorf("wrapped 502 = %v, want 1.0", got)
	}
}
