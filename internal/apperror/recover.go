package apperror

import (
	"fmt"
	"runtime"
)

// RecoverFromPanic is deferred at the top of long-lived goroutines. It turns a
// panic into a recorded error instead of crashing the process.
func RecoverFromPanic(h *Handler, component string) {
	if r := recover(); r != nil {
		stack := make([]byte, 4096)
		stack = stack[:runtime.Stack(stack, false)]
		if h != nil {
			h.Handle(fmt.Errorf("panic: %v\n%s", r, stack), component)
		}
	}
}
