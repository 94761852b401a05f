//go:build unix

package wrapper

import (
	"os"
	"os/signal"
	"syscall"
)

// IgnoreBrokenPipe stops the runtime from killing the process when stdout or
// stderr is a closed pipe. Writes then fail with EPIPE and relays record the
// error. Handled signals revert to their default in exec'd children, so the
// compiler keeps the normal SIGPIPE behavior.
func IgnoreBrokenPipe() (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGPIPE)
	return func() { signal.Stop(ch) }
}
