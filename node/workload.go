package node

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/adamgarcia4/goLearning/gloomers/protocol"
)

// Workload answers the requests a node receives after init. Handle returns the reply
// payload, or an error; a *protocol.RPCError is sent back with its code and anything
// else is reported as a crash.
//
// Handle, Init and Gossip are only ever called from the node's consumer goroutine.
type Workload interface {
	Name() string
	Handle(msg protocol.Message) (protocol.Payload, error)
}

// Initializer is implemented by workloads that need the node identity from init.
type Initializer interface {
	Init(self string, nodeIDs []string)
}

// Gossiper is implemented by workloads that push state to peers on every gossip round.
type Gossiper interface {
	Gossip() []Outbound
}

// Outbound is an unsolicited request a workload wants sent to another node.
type Outbound struct {
	Dest    string
	Payload protocol.Payload
}

// NewWorkload builds the workload named by cfg.Workload.
func NewWorkload(cfg *Config, log *zap.Logger) (Workload, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Workload {
	case WorkloadBroadcast:
		return NewBroadcastWorkload(cfg.EstimatePolicy, log)
	case WorkloadEcho:
		return EchoWorkload{}, nil
	case WorkloadUniqueIDs:
		return UniqueIDWorkload{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkload, cfg.Workload)
	}
}
