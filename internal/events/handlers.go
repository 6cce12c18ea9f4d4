package events

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// LogConfig configures LogHandler.
type LogConfig struct {
	// Writer is where log lines are written (default: os.Stderr).
	Writer io.Writer

	// IncludePayload includes the event payload in the log line.
	IncludePayload bool

	// TimeFormat is the timestamp format (default: time.RFC3339).
	TimeFormat string
}

// LogHandler returns a Handler that writes one line per event to the
// configured writer: "2024-01-01T00:00:00Z [job.start] web pid=123".
func LogHandler(cfg LogConfig) Handler {
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}

	return func(e Event) {
		var buf strings.Builder
		buf.WriteString(e.Time.Format(cfg.TimeFormat))
		buf.WriteString(" ")
		buf.WriteString(e.String())
		if cfg.IncludePayload && e.Payload != nil {
			fmt.Fprintf(&buf, " payload=%v", e.Payload)
		}
		buf.WriteString("\n")
		fmt.Fprint(cfg.Writer, buf.String())
	}
}
