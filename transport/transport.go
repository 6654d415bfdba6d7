// Package transport moves protocol messages in and out of a node: line-delimited JSON
// over standard input/output for real runs, and an in-memory network for the local
// simulator and tests.
package transport

import (
	"context"

	"github.com/adamgarcia4/goLearning/gloomers/protocol"
)

// Sender emits one message. Implementations serialize concurrent calls.
type Sender interface {
	Send(msg protocol.Message) error
}

// Receiver yields inbound messages in arrival order. It returns io.EOF when the input
// ends and a wrapped protocol.ErrMalformed when a message cannot be decoded.
type Receiver interface {
	Recv(ctx context.Context) (protocol.Message, error)
}
