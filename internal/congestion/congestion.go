// Package congestion contains code required to set the congestion control
// algorithm and read BBR variables of a TCP socket. This code currently only
// works on Linux systems, as BBR is only available there.
package congestion

import (
	"errors"
	"syscall"

	"github.com/m-lab/tcp-info/inetdiag"
)

var (
	// ErrNoSupport indicates that this system does not support BBR.
	ErrNoSupport = errors.New("TCP_CC_INFO not supported")

	// ErrNotBBR indicates that the socket does not use BBR, so there is no
	// BBR info to read.
	ErrNotBBR = errors.New("congestion control is not bbr")
)

// Set sets the congestion control algorithm of the socket behind raw.
func Set(raw syscall.RawConn, cc string) error {
	return set(raw, cc)
}

// Get returns the congestion control algorithm of the socket behind raw.
func Get(raw syscall.RawConn) (string, error) {
	return get(raw)
}

// GetBBRInfo obtains BBR info from the socket behind raw.
func GetBBRInfo(raw syscall.RawConn) (inetdiag.BBRInfo, error) {
	return getMaxBandwidthAndMinRTT(raw)
}
