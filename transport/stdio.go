package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/adamgarcia4/goLearning/gloomers/protocol"
)

// maxLineSize bounds a single input line. Topology and read_ok bodies for large
// clusters can exceed bufio's 64KiB default.
const maxLineSize = 16 << 20

// Stdio reads one message per line from r and writes one message per line to w.
type Stdio struct {
	scanner *bufio.Scanner

	mu sync.Mutex
	w  *bufio.Writer
}

func NewStdio(r io.Reader, w io.Writer) *Stdio {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Stdio{scanner: sc, w: bufio.NewWriter(w)}
}

// Recv blocks until the next non-blank line is read. Reads from a file descriptor are
// not interruptible, so ctx is only checked between lines.
func (s *Stdio) Recv(ctx context.Context) (protocol.Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return protocol.Message{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return protocol.Message{}, fmt.Errorf("read input: %w", err)
			}
			return protocol.Message{}, io.EOF
		}
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		msg, err := protocol.Decode(line)
		if err != nil {
			return protocol.Message{}, fmt.Errorf("decode %q: %w", truncate(line, 256), err)
		}
		return msg, nil
	}
}

// Send writes msg as a single line and flushes it.
func (s *Stdio) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
