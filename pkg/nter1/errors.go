package nter1

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
)

var (
	// ErrConnect is returned when the transport connection cannot be
	// established.
	ErrConnect = errors.New("connect failed")

	// ErrTransport is returned when a read or a write fails mid-run.
	ErrTransport = errors.New("transport failure")

	// ErrCancelled is returned when the measurement was stopped by the
	// caller's context. It is a clean terminal state.
	ErrCancelled = errors.New("cancelled")

	// ErrDisconnected is returned when the peer closed the connection.
	ErrDisconnected = errors.New("peer disconnected")
)

// IsClean reports whether err is a normal terminal state (nil, cancellation
// or a clean disconnection) rather than a failure.
func IsClean(err error) bool {
	return err == nil || errors.Is(err, ErrCancelled) ||
		errors.Is(err, ErrDisconnected)
}

// classify maps an I/O error observed on a connection to one of the error
// categories of this package. When ctx is done, the error is attributed to
// the cancellation since the connection's deadline is forced at that time.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return ErrDisconnected
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
