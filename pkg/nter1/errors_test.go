package nter1

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"testing"
)

func TestClassify(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	boom := errors.New("boom")

	tests := []struct {
		name  string
		ctx   context.Context
		err   error
		want  error
		cause error
	}{
		{
			name: "nil",
			ctx:  context.Background(),
			err:  nil,
			want: nil,
		},
		{
			name: "eof",
			ctx:  context.Background(),
			err:  io.EOF,
			want: ErrDisconnected,
		},
		{
			name: "closed",
			ctx:  context.Background(),
			err:  fmt.Errorf("read: %w", net.ErrClosed),
			want: ErrDisconnected,
		},
		{
			name:  "transport",
			ctx:   context.Background(),
			err:   boom,
			want:  ErrTransport,
			cause: boom,
		},
		{
			name:  "cancelled",
			ctx:   cancelled,
			err:   os.ErrDeadlineExceeded,
			want:  ErrCancelled,
			cause: context.Canceled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.ctx, tt.err)
			if tt.want == nil {
				if got != nil {
					t.Errorf("classify() = %v, want nil", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("classify() = %v, want %v", got, tt.want)
			}
			if tt.cause != nil && !errors.Is(got, tt.cause) {
				t.Errorf("classify() = %v, does not wrap %v", got, tt.cause)
			}
		})
	}
}

func TestIsClean(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, true},
		{ErrDisconnected, true},
		{fmt.Errorf("%w: %w", ErrCancelled, context.Canceled), true},
		{fmt.Errorf("%w: boom", ErrTransport), false},
		{ErrConnect, false},
	}
	for _, tt := range tests {
		if got := IsClean(tt.err); got != tt.want {
			t.Errorf("IsClean(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
