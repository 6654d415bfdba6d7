// Package protocol defines the line-delimited JSON envelope exchanged between nodes,
// clients and the test harness.
//
// A message on the wire looks like:
//
//	{"src":"c1","dest":"n1","body":{"type":"broadcast","msg_id":3,"message":42}}
//
// The body is flat: the tag, the request/reply correlation ids and the payload fields
// all live in one object. Body splits it into MsgID, InReplyTo and a typed Payload.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message is the envelope routed between processes.
type Message struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
	Body Body   `json:"body"`
}

// Body carries the correlation ids and the type-specific payload.
type Body struct {
	MsgID     *uint64
	InReplyTo *uint64
	Payload   Payload
}

// Type returns the tag of the payload, or "" when the body is empty.
func (b Body) Type() Type {
	if b.Payload == nil {
		return ""
	}
	return b.Payload.Type()
}

// IsReply reports whether the body answers an earlier request.
func (b Body) IsReply() bool {
	return b.InReplyTo != nil
}

type header struct {
	Type      Type    `json:"type"`
	MsgID     *uint64 `json:"msg_id,omitempty"`
	InReplyTo *uint64 `json:"in_reply_to,omitempty"`
}

// MarshalJSON flattens the header and the payload fields into one object.
func (b Body) MarshalJSON() ([]byte, error) {
	if b.Payload == nil {
		return nil, errors.New("body has no payload")
	}

	var raw []byte
	switch p := b.Payload.(type) {
	case Unknown:
		raw = p.Fields
	default:
		var err error
		raw, err = json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", p.Type(), err)
		}
	}

	fields := make(map[string]json.RawMessage)
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", b.Payload.Type(), err)
		}
	}
	delete(fields, "msg_id")
	delete(fields, "in_reply_to")

	hdr, err := json.Marshal(header{Type: b.Payload.Type(), MsgID: b.MsgID, InReplyTo: b.InReplyTo})
	if err != nil {
		return nil, err
	}
	var hdrFields map[string]json.RawMessage
	if err := json.Unmarshal(hdr, &hdrFields); err != nil {
		return nil, err
	}
	for k, v := range hdrFields {
		fields[k] = v
	}
	return json.Marshal(fields)
}

// UnmarshalJSON reads the header and dispatches on the tag to decode the payload.
func (b *Body) UnmarshalJSON(data []byte) error {
	var hdr header
	if err := json.Unmarshal(data, &hdr); err != nil {
		return fmt.Errorf("%w: body: %v", ErrMalformed, err)
	}
	if hdr.Type == "" {
		return fmt.Errorf("%w: body has no type", ErrMalformed)
	}
	p, err := decodePayload(hdr.Type, data)
	if err != nil {
		return fmt.Errorf("%w: %s body: %v", ErrMalformed, hdr.Type, err)
	}
	b.MsgID = hdr.MsgID
	b.InReplyTo = hdr.InReplyTo
	b.Payload = p
	return nil
}

// Decode parses one JSON document into a Message.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		if errors.Is(err, ErrMalformed) {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Body.Payload == nil {
		return Message{}, fmt.Errorf("%w: missing body", ErrMalformed)
	}
	if msg.Src == "" || msg.Dest == "" {
		return Message{}, fmt.Errorf("%w: missing src or dest", ErrMalformed)
	}
	return msg, nil
}

// Encode renders a Message as a single JSON document without a trailing newline.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Reply builds the answer to req: source and destination swapped, a fresh msg_id and
// in_reply_to set to the request's msg_id.
func Reply(req Message, msgID uint64, p Payload) Message {
	return Message{
		Src:  req.Dest,
		Dest: req.Src,
		Body: Body{
			MsgID:     ID(msgID),
			InReplyTo: req.Body.MsgID,
			Payload:   p,
		},
	}
}

// Request builds an unsolicited request from src to dest.
func Request(src, dest string, msgID uint64, p Payload) Message {
	return Message{
		Src:  src,
		Dest: dest,
		Body: Body{MsgID: ID(msgID), Payload: p},
	}
}

// ID returns a pointer to v, for filling the optional id fields.
func ID(v uint64) *uint64 {
	return &v
}
