package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

type wcOutput struct {
	timestamps bool
	w          io.Writer
}

func (w wcOutput) Write(stamp time.Time, debug bool, msg string) {
	b := strings.Builder{}
	if w.timestamps {
		b.WriteString(stamp.UTC().Format("2006-01-02T15:04:05.000Z "))
	}
	if debug {
		b.WriteString("[debug] ")
	}
	b.WriteString(msg)
	b.WriteRune('\n')
	if _, err := io.WriteString(w.w, b.String()); err != nil {
		fmt.Fprintf(os.Stderr, "mxstsd: failed to write log message: %v\n", err)
	}
}

func (w wcOutput) Close() error {
	if c, ok := w.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// WriterOutput writes formatted lines to w (stderr if w is nil), each
// prefixed with a UTC timestamp when timestamps is true. Goroutine-safety
// depends on w; os.Stderr provides it on its own.
func WriterOutput(w io.Writer, timestamps bool) Output {
	if w == nil {
		w = os.Stderr
	}
	return wcOutput{timestamps, w}
}
