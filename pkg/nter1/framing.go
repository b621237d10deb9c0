package nter1

import (
	"bytes"
	"encoding/binary"

	"github.com/m-lab/nter/pkg/nter1/spec"
)

// endMarker is the wire encoding of spec.EndMarkerValue.
var endMarker = binary.LittleEndian.AppendUint32(nil, spec.EndMarkerValue)

// EndMarker returns a copy of the end-of-run marker's wire encoding.
func EndMarker() []byte {
	return bytes.Clone(endMarker)
}

// IsEndMarker reports whether the first n bytes of buf end with the
// end-of-run marker. Reads shorter than the marker never match.
func IsEndMarker(buf []byte, n int) bool {
	if n < spec.EndMarkerSize || n > len(buf) {
		return false
	}
	return bytes.Equal(buf[n-spec.EndMarkerSize:n], endMarker)
}

// markerDetector recognizes the end marker at the tail of a read. When
// split is true it remembers the last bytes of the previous read, so that a
// marker delivered across two reads is still recognized.
type markerDetector struct {
	split bool
	tail  []byte
	win   []byte
}

func newMarkerDetector(split bool) *markerDetector {
	return &markerDetector{
		split: split,
		tail:  make([]byte, 0, spec.EndMarkerSize-1),
		win:   make([]byte, 0, 2*spec.EndMarkerSize),
	}
}

// check reports whether the stream read so far ends with the marker. It
// must be called once per read, in order.
func (d *markerDetector) check(buf []byte, n int) bool {
	if IsEndMarker(buf, n) {
		d.reset()
		return true
	}
	if !d.split {
		return false
	}
	if n >= spec.EndMarkerSize {
		d.remember(buf[n-(spec.EndMarkerSize-1) : n])
		return false
	}
	d.win = append(append(d.win[:0], d.tail...), buf[:n]...)
	if IsEndMarker(d.win, len(d.win)) {
		d.reset()
		return true
	}
	d.remember(d.win)
	return false
}

func (d *markerDetector) remember(b []byte) {
	if len(b) > spec.EndMarkerSize-1 {
		b = b[len(b)-(spec.EndMarkerSize-1):]
	}
	d.tail = append(d.tail[:0], b...)
}

// reset forgets any partial marker, e.g. at the end of a run.
func (d *markerDetector) reset() {
	d.tail = d.tail[:0]
}
