package common

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

var activeGoroutines atomic.Int64

// GetGoroutineCount returns how many SafeGo goroutines are still running
func GetGoroutineCount() int64 {
	return activeGoroutines.Load()
}

// SafeGo runs fn in a goroutine. A panic is logged with its stack and the
// process keeps serving.
//
//	common.SafeGo(logger, "auto-annotate", func() {
//	    sessions.Annotate(ctx, id)
//	})
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	activeGoroutines.Add(1)

	go func() {
		defer activeGoroutines.Add(-1)
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			buf := make([]byte, 4096)
			stack := string(buf[:runtime.Stack(buf, false)])

			if logger == nil {
				fmt.Fprintf(os.Stderr, "PANIC in goroutine %s: %v\n%s\n", name, r, stack)
				return
			}
			logger.Error().
				Str("goroutine", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", stack).
				Msg("Recovered from panic in goroutine")
		}()

		fn()
	}()
}
