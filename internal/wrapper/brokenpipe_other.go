//go:build !unix

package wrapper

// IgnoreBrokenPipe is a no-op where writes to a closed pipe do not raise a signal.
func IgnoreBrokenPipe() (stop func()) {
	return func() {}
}
