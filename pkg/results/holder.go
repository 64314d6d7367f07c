package results

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// DefaultHolder identifies the calling goroutine as
// "<hostname>:<pid>:g<goroutine-id>".
//
// Locks are owned by holders, so two goroutines of one process never share
// a default holder. Pass an explicit holder (or use WithHolder) when a lock
// must be released from a different goroutine than the one that took it.
func DefaultHolder() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	return fmt.Sprintf("%s:%d:g%d", hostname, os.Getpid(), goroutineID())
}

// goroutineID parses the id from the "goroutine N [running]:" stack header.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
