package util

import (
	"runtime"
)

// GoroutineID returns the id of the calling goroutine, parsed from the header of its stack trace
// ("goroutine 42 [running]:"). It is slow compared to a field load and should only be used
// for identity checks that are not on the hot path of every operation.
func GoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
