package logging

import (
	"encoding/json"
	"log/slog"
	"time"
)

// SSEWriter is an io.Writer that turns JSON slog records into LogEntry
// values for a LogBroadcaster.
type SSEWriter struct {
	broadcaster *LogBroadcaster
}

// NewSSEWriter writes to the process-wide broadcaster.
func NewSSEWriter() *SSEWriter {
	return &SSEWriter{broadcaster: GetBroadcaster()}
}

// NewSSEWriterFor writes to a specific broadcaster.
func NewSSEWriterFor(b *LogBroadcaster) *SSEWriter {
	return &SSEWriter{broadcaster: b}
}

func (w *SSEWriter) Write(p []byte) (n int, err error) {
	var rawLog map[string]any
	if err := json.Unmarshal(p, &rawLog); err != nil {
		w.broadcaster.SubmitLog(LogEntry{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Level:     slog.LevelError.String(),
			Channel:   string(ChannelSystem),
			Message:   "sse_writer: failed to parse incoming log message",
		})
		return len(p), nil
	}

	w.broadcaster.SubmitLog(LogEntry{
		Timestamp: getString(rawLog, "time"),
		Level:     getString(rawLog, "level"),
		Channel:   getString(rawLog, "channel"),
		Message:   getString(rawLog, "msg"),
		Realm:     getString(rawLog, "realm"),
		DamID:     getString(rawLog, "damId"),
	})

	return len(p), nil
}

func getString(data map[string]any, key string) string {
	if val, ok := data[key]; ok {
		if strVal, ok := val.(string); ok {
			return strVal
		}
	}
	return ""
}
