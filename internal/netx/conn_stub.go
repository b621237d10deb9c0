//go:build !linux
// +build !linux

package netx

import (
	"syscall"

	"github.com/m-lab/tcp-info/tcp"
)

// On non-Linux systems, SO_COOKIE and TCP_INFO aren't supported.

func getCookie(syscall.RawConn) (uint64, error) {
	return 0, ErrNoSupport
}

func getTCPInfo(syscall.RawConn) (tcp.LinuxTCPInfo, error) {
	return tcp.LinuxTCPInfo{}, ErrNoSupport
}
