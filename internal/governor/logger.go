package governor

// Logger is the narrow logging surface the governor needs. It matches the
// method set of *github.com/charmbracelet/log.Logger, the logger
// cmd/cyanfreqd constructs (SPEC_FULL.md §10.1), without forcing this
// package to import it directly.
type Logger interface {
	Info(msg interface{}, keyvals ...interface{})
	Warn(msg interface{}, keyvals ...interface{})
	Debug(msg interface{}, keyvals ...interface{})
}

// nopLogger discards everything. Used when callers don't supply a Logger.
type nopLogger struct{}

func (nopLogger) Info(interface{}, ...interface{})  {}
func (nopLogger) Warn(interface{}, ...interface{})  {}
func (nopLogger) Debug(interface{}, ...interface{}) {}
