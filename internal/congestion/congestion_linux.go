package congestion

import (
	"syscall"
	"unsafe"

	"github.com/m-lab/tcp-info/inetdiag"
	"golang.org/x/sys/unix"
)

func set(raw syscall.RawConn, cc string) error {
	var serr error
	err := raw.Control(func(fd uintptr) {
		serr = unix.SetsockoptString(int(fd), unix.IPPROTO_TCP, unix.TCP_CONGESTION, cc)
	})
	if err != nil {
		return err
	}
	return serr
}

func get(raw syscall.RawConn) (string, error) {
	var cc string
	var serr error
	err := raw.Control(func(fd uintptr) {
		cc, serr = unix.GetsockoptString(int(fd), unix.IPPROTO_TCP, unix.TCP_CONGESTION)
	})
	if err != nil {
		return "", err
	}
	return cc, serr
}

// bbrInfo is the kernel's struct tcp_bbr_info.
type bbrInfo struct {
	bwLo       uint32
	bwHi       uint32
	minRTT     uint32
	pacingGain uint32
	cwndGain   uint32
}

func getMaxBandwidthAndMinRTT(raw syscall.RawConn) (inetdiag.BBRInfo, error) {
	// TCP_CC_INFO returns a different struct depending on the algorithm.
	cc, err := get(raw)
	if err != nil {
		return inetdiag.BBRInfo{}, err
	}
	if cc != "bbr" {
		return inetdiag.BBRInfo{}, ErrNotBBR
	}
	var info bbrInfo
	var serr error
	size := uint32(unsafe.Sizeof(info))
	err = raw.Control(func(fd uintptr) {
		_, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT, fd,
			unix.IPPROTO_TCP, unix.TCP_CC_INFO,
			uintptr(unsafe.Pointer(&info)), uintptr(unsafe.Pointer(&size)), 0)
		if errno != 0 {
			serr = errno
		}
	})
	if err != nil {
		return inetdiag.BBRInfo{}, err
	}
	if serr != nil {
		return inetdiag.BBRInfo{}, serr
	}
	return inetdiag.BBRInfo{
		BW:         int64(info.bwHi)<<32 | int64(info.bwLo),
		MinRTT:     info.minRTT,
		PacingGain: info.pacingGain,
		CwndGain:   info.cwndGain,
	}, nil
}
