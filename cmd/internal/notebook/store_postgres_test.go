package notebook

import (
	"context"
	"errors"
	"net"
	"testing"
)

func TestStoreErrClassification(t *testing.T) {
	if got := storeErr(nil); got != nil {
		t.Fatalf("nil in, got %v", got)
	}

	for _, err := range []error{
		context.DeadlineExceeded,
		&net.OpError{Op: "read", Err: errors.New("connection reset")},
	} {
		if got := storeErr(err); !errors.Is(got, ErrUnavailable) {
			t.Fatalf("%v: got %v, want ErrUnavailable", err, got)
		}
	}

	// Domain and query errors pass through untouched.
	for _, err := range []error{ErrNotFound, ErrConflict, errors.New("syntax error")} {
		if got := storeErr(err); errors.Is(got, ErrUnavailable) || !errors.Is(got, err) {
			t.Fatalf("%v: got %v", err, got)
		}
	}
}
