package session

import (
	"context"
	"errors"
	"net"
	"testing"
)

func TestStoreErrClassification(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"deadline", context.DeadlineExceeded, ErrUnavailable},
		{"dial failure", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, ErrUnavailable},
		{"domain error passes through", ErrSessionNotActive, ErrSessionNotActive},
		{"unknown session passes through", ErrUnknownSession, ErrUnknownSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := storeErr(tt.in)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("got %v, want nil", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}

	// Plain query errors must not be misread as an outage.
	plain := errors.New("syntax error")
	if errors.Is(storeErr(plain), ErrUnavailable) {
		t.Fatalf("plain error classified as unavailable")
	}
}
