package ambient

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the calling goroutine's numeric id by parsing the
// leading line of its own stack trace — the same technique the race
// detector and several debugging libraries use, since Go deliberately
// exposes no goroutine-local storage primitive. This is the one piece of
// the ambient context with no library in the retrieved pack that solves it;
// see DESIGN.md's stdlib-exception entry for this file.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]

	// Stack traces begin with "goroutine <id> [running]:".
	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return 0
	}
	buf = buf[len(prefix):]
	idx := bytes.IndexByte(buf, ' ')
	if idx < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(buf[:idx]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
