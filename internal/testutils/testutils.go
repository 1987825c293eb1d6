// Package testutils provides small test helpers shared across mxstsd's
// packages: a scratch directory and a Logger that routes through t.Log.
package testutils

import (
	"flag"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mxstsd/mxstsd/internal/log"
)

var (
	debugLog  = flag.Bool("test.debuglog", false, "turn on debug log messages")
	directLog = flag.Bool("test.directlog", false, "log to stderr instead of the test log")
)

// Logger returns a log.Logger named name whose output is routed to t.Log,
// unless -test.directlog asks for stderr instead (useful when a failure
// needs to be inspected outside the test framework's output capture).
func Logger(t *testing.T, name string) log.Logger {
	if *directLog {
		return log.Logger{
			Out:   log.WriterOutput(os.Stderr, true),
			Name:  name,
			Debug: *debugLog,
		}
	}

	return log.Logger{
		Out: log.FuncOutput(func(_ time.Time, debug bool, str string) {
			t.Helper()
			str = strings.TrimSuffix(str, "\n")
			if debug {
				str = "[debug] " + str
			}
			t.Log(str)
		}, func() error { return nil }),
		Name:  name,
		Debug: *debugLog,
	}
}

// Dir returns a fresh scratch directory that is removed when the test
// completes.
func Dir(t *testing.T) string {
	return t.TempDir()
}
