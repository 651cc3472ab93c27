// -----------------------------------------------------------------------
// Safe Goroutine - Panic-protected goroutine wrappers
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

// goroutineCounter tracks spawned goroutines for diagnostics
var goroutineCounter int64

// GetGoroutineCount returns the number of goroutines spawned via SafeGo
func GetGoroutineCount() int64 {
	return atomic.LoadInt64(&goroutineCounter)
}

// SafeGo runs a function in a goroutine with panic recovery.
// Panics are logged but don't crash the process.
//
// Example:
//
//	common.SafeGo(logger, "search", func() {
//	    searcher.SearchLinks(ctx, path, progress)
//	})
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	atomic.AddInt64(&goroutineCounter, 1)

	go func() {
		defer RecoverPanic(logger, name, nil)
		fn()
	}()
}

// RecoverPanic is meant to be deferred. It logs a recovered panic with its stack and
// hands the panic value to onPanic when one is given.
func RecoverPanic(logger arbor.ILogger, name string, onPanic func(value interface{}, stack string)) {
	r := recover()
	if r == nil {
		return
	}

	stackTrace := GetStackTrace()

	if logger != nil {
		logger.Error().
			Str("goroutine", name).
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack", stackTrace).
			Msg("Recovered from panic in goroutine - continuing operation")
	} else {
		fmt.Fprintf(os.Stderr, "PANIC in goroutine %s: %v\n%s\n", name, r, stackTrace)
	}

	if onPanic != nil {
		onPanic(r, stackTrace)
	}
}

// GetStackTrace returns the current goroutine's stack trace.
func GetStackTrace() string {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false) // false = current goroutine only
	return string(buf[:n])
}
