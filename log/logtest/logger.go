/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"io"
	"os"
	"sync"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-ratelimitd/log"
)

// syncWriter encodes every entry synchronously, so output is visible as soon as the log call returns.
type syncWriter struct {
	mu      sync.Mutex
	encoder logf.Encoder
	out     io.Writer
}

//nolint:gocritic // logf.EntryWriter passes entries by value
func (w *syncWriter) WriteEntry(e logf.Entry) {
	var buf logf.Buffer
	if err := w.encoder.Encode(&buf, e); err != nil {
		buf.Reset()
		buf.AppendString("encode log entry: " + err.Error() + "\n")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = w.out.Write(buf.Data)
}

// LoggerOpts configures NewLoggerWithOpts.
type LoggerOpts struct {
	// Output defaults to os.Stderr.
	Output io.Writer
}

// NewLogger returns a debug-level JSON logger writing to stderr.
func NewLogger() log.FieldLogger {
	return NewLoggerWithOpts(LoggerOpts{})
}

// NewLoggerWithOpts returns a debug-level JSON logger. Not meant for production use.
func NewLoggerWithOpts(opts LoggerOpts) log.FieldLogger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	w := &syncWriter{
		encoder: logf.NewJSONEncoder(logf.JSONEncoderConfig{
			EncodeTime:   logf.RFC3339NanoTimeEncoder,
			FieldKeyTime: "time",
		}),
		out: out,
	}
	return &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, w)}
}
