package node

import (
	"github.com/google/uuid"

	"github.com/adamgarcia4/goLearning/gloomers/protocol"
)

// EchoWorkload answers echo with the same value.
type EchoWorkload struct{}

func (EchoWorkload) Name() string { return WorkloadEcho }

func (EchoWorkload) Handle(msg protocol.Message) (protocol.Payload, error) {
	switch p := msg.Body.Payload.(type) {
	case protocol.Echo:
		return protocol.EchoOk{Echo: p.Echo}, nil
	default:
		return nil, protocol.ErrNotSupported(msg.Body.Type())
	}
}

// UniqueIDWorkload answers generate with a random UUID, unique across the cluster
// without any coordination.
type UniqueIDWorkload struct{}

func (UniqueIDWorkload) Name() string { return WorkloadUniqueIDs }

func (UniqueIDWorkload) Handle(msg protocol.Message) (protocol.Payload, error) {
	switch msg.Body.Payload.(type) {
	case protocol.Generate:
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, protocol.NewError(protocol.Crash, "generate id: "+err.Error())
		}
		return protocol.GenerateOk{ID: id.String()}, nil
	default:
		return nil, protocol.ErrNotSupported(msg.Body.Type())
	}
}
