//go:build !linux
// +build !linux

package congestion

import (
	"syscall"

	"github.com/m-lab/tcp-info/inetdiag"
)

func set(syscall.RawConn, string) error {
	return ErrNoSupport
}

func get(syscall.RawConn) (string, error) {
	return "", ErrNoSupport
}

func getMaxBandwidthAndMinRTT(syscall.RawConn) (inetdiag.BBRInfo, error) {
	return inetdiag.BBRInfo{}, ErrNoSupport
}
