// gid exposes the runtime's id for the calling goroutine. The runtime does
// not provide this directly, so the id is parsed out of the first line of
// [runtime.Stack] output, which looks like "goroutine 18 [running]:". This is
// used only to detect reentrant initialization, never for identity that
// outlives the call.
package gid

import (
	"bytes"
	"runtime"
	"strconv"
)

var prefix = []byte("goroutine ")

// Current returns the id of the calling goroutine, or 0 if it cannot be
// determined. Ids are positive, so 0 is safe to use as a sentinel.
func Current() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	frame := bytes.TrimPrefix(buf[:n], prefix)
	if i := bytes.IndexByte(frame, ' '); i >= 0 {
		frame = frame[:i]
	}
	id, err := strconv.ParseInt(string(frame), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
