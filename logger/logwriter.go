package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogBufferWriter is an io.Writer that writes to the log buffer.
// It understands the JSON lines produced by the zap outputs, taking the node ID from
// the "node" field. Plain lines in the format "[nodeID] message" are accepted too.
type LogBufferWriter struct {
	buffer *LogBuffer
	buf    bytes.Buffer
	mu     sync.Mutex
}

var nodeIDRegex = regexp.MustCompile(`^\[([^\]]+)\]\s*(.*)$`)

// Keys that are rendered outside the message text.
var reservedKeys = map[string]bool{
	"ts":     true,
	"level":  true,
	"msg":    true,
	"node":   true,
	"caller": true,
	"logger": true,
}

// NewLogBufferWriter creates a new writer that writes to the log buffer
func NewLogBufferWriter(buffer *LogBuffer) *LogBufferWriter {
	return &LogBufferWriter{
		buffer: buffer,
	}
}

// Write implements io.Writer
func (lw *LogBufferWriter) Write(p []byte) (n int, err error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	// Buffer until we get a newline
	lw.buf.Write(p)

	for {
		line, err := lw.buf.ReadString('\n')
		if err == io.EOF {
			// keep the partial line for the next write
			lw.buf.WriteString(line)
			break
		}
		if err != nil {
			return len(p), err
		}

		line = strings.TrimSuffix(line, "\n")
		if len(line) == 0 {
			continue
		}
		lw.buffer.AddEntry(parseLine(line))
	}

	return len(p), nil
}

func parseLine(line string) LogEntry {
	if strings.HasPrefix(line, "{") {
		if entry, ok := parseJSONLine(line); ok {
			return entry
		}
	}

	entry := LogEntry{NodeID: "system", Level: "info", Message: line}
	if matches := nodeIDRegex.FindStringSubmatch(line); len(matches) == 3 {
		entry.NodeID = matches[1]
		entry.Message = matches[2]
	}
	return entry
}

func parseJSONLine(line string) (LogEntry, bool) {
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return LogEntry{}, false
	}

	entry := LogEntry{NodeID: "system", Level: "info"}
	if s, ok := fields["msg"].(string); ok {
		entry.Message = s
	}
	if s, ok := fields["level"].(string); ok {
		entry.Level = s
	}
	if s, ok := fields["node"].(string); ok && s != "" {
		entry.NodeID = s
	}
	if s, ok := fields["ts"].(string); ok {
		if ts, err := time.Parse("2006-01-02T15:04:05.000Z0700", s); err == nil {
			entry.Timestamp = ts
		}
	}

	extra := make([]string, 0, len(fields))
	for k, v := range fields {
		if reservedKeys[k] {
			continue
		}
		extra = append(extra, fmt.Sprintf("%s=%v", k, renderValue(v)))
	}
	sort.Strings(extra)
	if len(extra) > 0 {
		entry.Message = strings.TrimSpace(entry.Message + " " + strings.Join(extra, " "))
	}
	return entry, true
}

func renderValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
