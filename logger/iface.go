package logger

// Logger is the tagged logger handed to components. The tag plays the role of
// the prefix in the package-level functions.
type Logger interface {
	Trace(tag, format string, args ...interface{})
	Debug(tag, format string, args ...interface{})
	Info(tag, format string, args ...interface{})
	Warn(tag, format string, args ...interface{})
	Error(tag, format string, args ...interface{})
	DebugJSON(tag, label string, v interface{})
}

type global struct{}

// Default returns a Logger backed by the package-level level and output.
func Default() Logger { return global{} }

func (global) Trace(tag, format string, args ...interface{}) { Trace(tag, format, args...) }
func (global) Debug(tag, format string, args ...interface{}) { Debug(tag, format, args...) }
func (global) Info(tag, format string, args ...interface{})  { Info(tag, format, args...) }
func (global) Warn(tag, format string, args ...interface{})  { Warn(tag, format, args...) }
func (global) Error(tag, format string, args ...interface{}) { Error(tag, format, args...) }
func (global) DebugJSON(tag, label string, v interface{})    { DebugJSON(tag, label, v) }

type nop struct{}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nop{} }

func (nop) Trace(string, string, ...interface{})  {}
func (nop) Debug(string, string, ...interface{})  {}
func (nop) Info(string, string, ...interface{})   {}
func (nop) Warn(string, string, ...interface{})   {}
func (nop) Error(string, string, ...interface{})  {}
func (nop) DebugJSON(string, string, interface{}) {}

// OrDefault returns l, or Default() when l is nil.
func OrDefault(l Logger) Logger {
	if l == nil {
		return Default()
	}
	return l
}
