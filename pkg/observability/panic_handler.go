package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with the full stack trace.
// Call it in a defer statement:
//
//	defer observability.RecoverPanic(logger, "search handler")
//
// After logging, the panic is not re-raised.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}

// MustRecover converts a recovered panic value to an error:
//
//	defer func() {
//	    err = observability.MustRecover(recover())
//	}()
//
// Returns nil when no panic occurred.
func MustRecover(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}
