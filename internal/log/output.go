package log

import "time"

type funcOut struct {
	out   func(time.Time, bool, string)
	close func() error
}

func (f funcOut) Write(stamp time.Time, debug bool, msg string) { f.out(stamp, debug, msg) }
func (f funcOut) Close() error                                  { return f.close() }

// FuncOutput adapts a plain function into an Output, handy for tests that
// want to route log lines into t.Log.
func FuncOutput(f func(time.Time, bool, string), close func() error) Output {
	return funcOut{f, close}
}

type multiOut struct{ outs []Output }

func (m multiOut) Write(stamp time.Time, debug bool, msg string) {
	for _, out := range m.outs {
		out.Write(stamp, debug, msg)
	}
}

func (m multiOut) Close() error {
	for _, out := range m.outs {
		if err := out.Close(); err != nil {
			return err
		}
	}
	return nil
}

// MultiOutput fans a single log line out to several sinks.
func MultiOutput(outputs ...Output) Output { return multiOut{outputs} }

type NopOutput struct{}

func (NopOutput) Write(time.Time, bool, string) {}
func (NopOutput) Close() error                  { return nil }
