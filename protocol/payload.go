package protocol

import "encoding/json"

// Type is the value of the body's "type" field.
type Type string

const (
	TypeInit        Type = "init"
	TypeInitOk      Type = "init_ok"
	TypeEcho        Type = "echo"
	TypeEchoOk      Type = "echo_ok"
	TypeGenerate    Type = "generate"
	TypeGenerateOk  Type = "generate_ok"
	TypeBroadcast   Type = "broadcast"
	TypeBroadcastOk Type = "broadcast_ok"
	TypeRead        Type = "read"
	TypeReadOk      Type = "read_ok"
	TypeTopology    Type = "topology"
	TypeTopologyOk  Type = "topology_ok"
	TypeError       Type = "error"
)

// Payload is the type-specific part of a body. The set of implementations is closed:
// every variant lives in this file, and tags outside the set decode to Unknown.
type Payload interface {
	Type() Type
	payload()
}

type Init struct {
	NodeID  string   `json:"node_id"`
	NodeIDs []string `json:"node_ids"`
}

type InitOk struct{}

type Echo struct {
	Echo json.RawMessage `json:"echo"`
}

type EchoOk struct {
	Echo json.RawMessage `json:"echo"`
}

type Generate struct{}

type GenerateOk struct {
	ID string `json:"id"`
}

type Broadcast struct {
	Message uint64 `json:"message"`
}

type BroadcastOk struct{}

type Read struct{}

type ReadOk struct {
	Messages []uint64 `json:"messages"`
}

type Topology struct {
	Topology map[string][]string `json:"topology"`
}

type TopologyOk struct{}

// Error is the body of an error reply.
type Error struct {
	Code ErrorCode `json:"code"`
	Text string    `json:"text"`
}

// Unknown holds a body whose tag is not one of the known variants. Its fields are kept
// verbatim so it can be logged or forwarded.
type Unknown struct {
	Tag    Type
	Fields json.RawMessage
}

func (Init) Type() Type        { return TypeInit }
func (InitOk) Type() Type      { return TypeInitOk }
func (Echo) Type() Type        { return TypeEcho }
func (EchoOk) Type() Type      { return TypeEchoOk }
func (Generate) Type() Type    { return TypeGenerate }
func (GenerateOk) Type() Type  { return TypeGenerateOk }
func (Broadcast) Type() Type   { return TypeBroadcast }
func (BroadcastOk) Type() Type { return TypeBroadcastOk }
func (Read) Type() Type        { return TypeRead }
func (ReadOk) Type() Type      { return TypeReadOk }
func (Topology) Type() Type    { return TypeTopology }
func (TopologyOk) Type() Type  { return TypeTopologyOk }
func (Error) Type() Type       { return TypeError }
func (u Unknown) Type() Type   { return u.Tag }

func (Init) payload()        {}
func (InitOk) payload()      {}
func (Echo) payload()        {}
func (EchoOk) payload()      {}
func (Generate) payload()    {}
func (GenerateOk) payload()  {}
func (Broadcast) payload()   {}
func (BroadcastOk) payload() {}
func (Read) payload()        {}
func (ReadOk) payload()      {}
func (Topology) payload()    {}
func (TopologyOk) payload()  {}
func (Error) payload()       {}
func (Unknown) payload()     {}

// decodePayload decodes the type-specific fields of a body.
func decodePayload(t Type, data []byte) (Payload, error) {
	switch t {
	case TypeInit:
		return decodeAs[Init](data)
	case TypeInitOk:
		return InitOk{}, nil
	case TypeEcho:
		return decodeAs[Echo](data)
	case TypeEchoOk:
		return decodeAs[EchoOk](data)
	case TypeGenerate:
		return Generate{}, nil
	case TypeGenerateOk:
		return decodeAs[GenerateOk](data)
	case TypeBroadcast:
		return decodeAs[Broadcast](data)
	case TypeBroadcastOk:
		return BroadcastOk{}, nil
	case TypeRead:
		return Read{}, nil
	case TypeReadOk:
		return decodeAs[ReadOk](data)
	case TypeTopology:
		return decodeAs[Topology](data)
	case TypeTopologyOk:
		return TopologyOk{}, nil
	case TypeError:
		return decodeAs[Error](data)
	default:
		return Unknown{Tag: t, Fields: append(json.RawMessage(nil), data...)}, nil
	}
}

func decodeAs[P Payload](data []byte) (Payload, error) {
	var p P
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}
