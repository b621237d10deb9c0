package netx

import (
	"syscall"
	"unsafe"

	"github.com/m-lab/tcp-info/tcp"
	"golang.org/x/sys/unix"
)

func getCookie(raw syscall.RawConn) (uint64, error) {
	var cookie uint64
	var serr error
	err := raw.Control(func(fd uintptr) {
		cookie, serr = unix.GetsockoptUint64(int(fd), unix.SOL_SOCKET, unix.SO_COOKIE)
	})
	if err != nil {
		return 0, err
	}
	return cookie, serr
}

func getTCPInfo(raw syscall.RawConn) (tcp.LinuxTCPInfo, error) {
	var info tcp.LinuxTCPInfo
	var serr error
	// tcp.LinuxTCPInfo mirrors the kernel's struct tcp_info. Older kernels
	// fill only a prefix of it.
	size := uint32(unsafe.Sizeof(info))
	err := raw.Control(func(fd uintptr) {
		_, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT, fd,
			unix.IPPROTO_TCP, unix.TCP_INFO,
			uintptr(unsafe.Pointer(&info)), uintptr(unsafe.Pointer(&size)), 0)
		if errno != 0 {
			serr = errno
		}
	})
	if err != nil {
		return info, err
	}
	return info, serr
}
