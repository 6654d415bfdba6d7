package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/gloomers/gossip"
	"github.com/adamgarcia4/goLearning/gloomers/protocol"
	"github.com/adamgarcia4/goLearning/gloomers/transport"
)

type recorder struct {
	mu   sync.Mutex
	msgs []protocol.Message
	err  error
}

func (r *recorder) Send(msg protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) sent() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Message(nil), r.msgs...)
}

func newTestNode(t *testing.T, workload string, opts ...Option) *Node {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Workload = workload
	cfg.ManualGossip = true
	n, err := New(cfg, nil, &recorder{}, opts...)
	require.NoError(t, err)
	return n
}

// initNode runs the init handshake and returns the single reply.
func initNode(t *testing.T, n *Node, id string, members ...string) protocol.Message {
	t.Helper()
	out := n.Step(protocol.Request("c0", id, 1, protocol.Init{NodeID: id, NodeIDs: members}))
	require.Len(t, out, 1)
	return out[0]
}

func stepOne(t *testing.T, n *Node, msg protocol.Message) protocol.Message {
	t.Helper()
	out := n.Step(msg)
	require.Len(t, out, 1, "a request gets exactly one reply")
	return out[0]
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"defaults", func(*Config) {}, nil},
		{"echo", func(c *Config) { c.Workload = WorkloadEcho }, nil},
		{"unknown workload", func(c *Config) { c.Workload = "kafka" }, ErrUnknownWorkload},
		{"zero interval", func(c *Config) { c.GossipInterval = 0 }, ErrInvalidGossipInterval},
		{"zero interval in manual mode", func(c *Config) {
			c.GossipInterval = 0
			c.ManualGossip = true
		}, nil},
		{"unknown policy", func(c *Config) { c.EstimatePolicy = "pessimistic" }, ErrUnknownPolicy},
		{"negative warn depth", func(c *Config) { c.QueueWarnDepth = -1 }, ErrInvalidQueueWarnDepth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workload = "nope"
	_, err := New(cfg, nil, &recorder{})
	assert.ErrorIs(t, err, ErrUnknownWorkload)

	_, err = New(nil, nil, &recorder{})
	assert.Error(t, err)

	_, err = New(DefaultConfig(), nil, nil)
	assert.Error(t, err)
}

func TestStep_Init(t *testing.T) {
	n := newTestNode(t, WorkloadBroadcast)
	assert.Equal(t, "", n.ID())

	reply := initNode(t, n, "n1", "n1", "n2", "n3")

	assert.Equal(t, "n1", reply.Src)
	assert.Equal(t, "c0", reply.Dest)
	assert.Equal(t, protocol.InitOk{}, reply.Body.Payload)
	require.NotNil(t, reply.Body.MsgID)
	assert.Equal(t, uint64(0), *reply.Body.MsgID, "the first msg_id is 0")
	require.NotNil(t, reply.Body.InReplyTo)
	assert.Equal(t, uint64(1), *reply.Body.InReplyTo)

	assert.Equal(t, "n1", n.ID())
	assert.Equal(t, []string{"n1", "n2", "n3"}, n.NodeIDs())
}

func TestStep_MsgIDsAreMonotonic(t *testing.T) {
	n := newTestNode(t, WorkloadBroadcast)
	initNode(t, n, "n1", "n1")

	var last uint64
	for i := 0; i < 5; i++ {
		reply := stepOne(t, n, protocol.Request("c1", "n1", uint64(10+i), protocol.Read{}))
		require.NotNil(t, reply.Body.MsgID)
		assert.Greater(t, *reply.Body.MsgID, last)
		last = *reply.Body.MsgID
	}
}

func TestStep_InjectedIDSource(t *testing.T) {
	n := newTestNode(t, WorkloadBroadcast, WithIDSource(protocol.NewCounter(100)))
	reply := initNode(t, n, "n1", "n1")
	assert.Equal(t, uint64(100), *reply.Body.MsgID)
}

func TestStep_BroadcastThenRead(t *testing.T) {
	n := newTestNode(t, WorkloadBroadcast)
	initNode(t, n, "n1", "n1", "n2")

	reply := stepOne(t, n, protocol.Request("c1", "n1", 2, protocol.Read{}))
	assert.Equal(t, protocol.ReadOk{Messages: []uint64{}}, reply.Body.Payload)
	data, err := protocol.Encode(reply)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"messages":[]`)

	reply = stepOne(t, n, protocol.Request("c1", "n1", 3, protocol.Broadcast{Message: 42}))
	assert.Equal(t, protocol.BroadcastOk{}, reply.Body.Payload)
	assert.Equal(t, uint64(3), *reply.Body.InReplyTo)

	reply = stepOne(t, n, protocol.Request("c1", "n1", 4, protocol.Read{}))
	assert.Equal(t, protocol.ReadOk{Messages: []uint64{42}}, reply.Body.Payload)
}

func TestStep_BroadcastIsIdempotent(t *testing.T) {
	n := newTestNode(t, WorkloadBroadcast)
	initNode(t, n, "n1", "n1")

	for i := 0; i < 3; i++ {
		reply := stepOne(t, n, protocol.Request("c1", "n1", uint64(2+i), protocol.Broadcast{Message: 7}))
		assert.Equal(t, protocol.BroadcastOk{}, reply.Body.Payload)
	}
	reply := stepOne(t, n, protocol.Request("c1", "n1", 9, protocol.Read{}))
	assert.Equal(t, []uint64{7}, reply.Body.Payload.(protocol.ReadOk).Messages)
}

func TestStep_UnsupportedType(t *testing.T) {
	n := newTestNode(t, WorkloadBroadcast)
	initNode(t, n, "n1", "n1")

	msg, err := protocol.Decode([]byte(`{"src":"c1","dest":"n1","body":{"type":"cas","msg_id":5,"key":1,"from":2,"to":3}}`))
	require.NoError(t, err)

	reply := stepOne(t, n, msg)
	e, ok := reply.Body.Payload.(protocol.Error)
	require.True(t, ok, "got %T", reply.Body.Payload)
	assert.Equal(t, protocol.NotSupported, e.Code)
	assert.Contains(t, e.Text, "cas")
	require.NotNil(t, reply.Body.InReplyTo)
	assert.Equal(t, uint64(5), *reply.Body.InReplyTo)
	assert.Equal(t, "c1", reply.Dest)
}

func TestStep_RepliesAreAbsorbed(t *testing.T) {
	n := newTestNode(t, WorkloadBroadcast)
	initNode(t, n, "n1", "n1", "n2")

	ack := protocol.Reply(protocol.Request("n1", "n2", 7, protocol.Broadcast{Message: 1}), 3, protocol.BroadcastOk{})
	assert.Empty(t, n.Step(ack))

	peerErr := protocol.Reply(protocol.Request("n1", "n2", 8, protocol.Read{}), 4, protocol.Error{Code: protocol.Crash, Text: "boom"})
	assert.Empty(t, n.Step(peerErr), "error replies are not answered either")
}

func TestStep_TopologyNotSupportedByEcho(t *testing.T) {
	n := newTestNode(t, WorkloadEcho)
	initNode(t, n, "n1", "n1")

	reply := stepOne(t, n, protocol.Request("c1", "n1", 2, protocol.Topology{Topology: map[string][]string{"n1": {}}}))
	e, ok := reply.Body.Payload.(protocol.Error)
	require.True(t, ok)
	assert.Equal(t, protocol.NotSupported, e.Code)
}

func TestStep_Echo(t *testing.T) {
	n := newTestNode(t, WorkloadEcho)
	initNode(t, n, "n1", "n1")

	reply := stepOne(t, n, protocol.Request("c1", "n1", 2, protocol.Echo{Echo: json.RawMessage(`"hello"`)}))
	assert.Equal(t, protocol.EchoOk{Echo: json.RawMessage(`"hello"`)}, reply.Body.Payload)
}

func TestStep_GenerateUniqueIDs(t *testing.T) {
	n := newTestNode(t, WorkloadUniqueIDs)
	initNode(t, n, "n1", "n1")

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		reply := stepOne(t, n, protocol.Request("c1", "n1", uint64(i+2), protocol.Generate{}))
		gen, ok := reply.Body.Payload.(protocol.GenerateOk)
		require.True(t, ok)
		_, err := uuid.Parse(gen.ID)
		require.NoError(t, err)
		assert.False(t, seen[gen.ID], "duplicate id %s", gen.ID)
		seen[gen.ID] = true
	}
}

type failingWorkload struct{}

func (failingWorkload) Name() string { return "failing" }
func (failingWorkload) Handle(protocol.Message) (protocol.Payload, error) {
	return nil, errors.New("disk on fire")
}

func TestStep_PlainErrorBecomesCrash(t *testing.T) {
	n, err := New(DefaultConfig(), failingWorkload{}, &recorder{})
	require.NoError(t, err)
	initNode(t, n, "n1", "n1")

	reply := stepOne(t, n, protocol.Request("c1", "n1", 2, protocol.Read{}))
	assert.Equal(t, protocol.Error{Code: protocol.Crash, Text: "disk on fire"}, reply.Body.Payload)
}

func TestGossipRound_BeforeInitIsNoop(t *testing.T) {
	n := newTestNode(t, WorkloadBroadcast)
	assert.Nil(t, n.GossipRound())
}

func TestGossipRound_NoTopologyIsNoop(t *testing.T) {
	n := newTestNode(t, WorkloadBroadcast)
	initNode(t, n, "n1", "n1", "n2")
	stepOne(t, n, protocol.Request("c1", "n1", 2, protocol.Broadcast{Message: 1}))
	assert.Nil(t, n.GossipRound())
}

func TestGossipRound_OnlyInstalledNeighbors(t *testing.T) {
	n := newTestNode(t, WorkloadBroadcast)
	initNode(t, n, "n1", "n1", "n2", "n3")

	stepOne(t, n, protocol.Request("c1", "n1", 2, protocol.Topology{Topology: map[string][]string{
		"n1": {"n2"},
		"n2": {"n1", "n3"},
		"n3": {"n2"},
	}}))
	stepOne(t, n, protocol.Request("c1", "n1", 3, protocol.Broadcast{Message: 5}))
	stepOne(t, n, protocol.Request("c1", "n1", 4, protocol.Broadcast{Message: 6}))

	out := n.GossipRound()
	require.Len(t, out, 2)
	for _, m := range out {
		assert.Equal(t, "n1", m.Src)
		assert.Equal(t, "n2", m.Dest, "n3 is not a neighbor of n1")
		assert.Nil(t, m.Body.InReplyTo)
		assert.NotNil(t, m.Body.MsgID)
	}
	assert.Equal(t, protocol.Broadcast{Message: 5}, out[0].Body.Payload)
	assert.Equal(t, protocol.Broadcast{Message: 6}, out[1].Body.Payload)
	assert.NotEqual(t, *out[0].Body.MsgID, *out[1].Body.MsgID)
}

func TestGossipRound_StopsOnceNeighborIsSeenWithValue(t *testing.T) {
	n := newTestNode(t, WorkloadBroadcast)
	initNode(t, n, "n1", "n1", "n2")
	stepOne(t, n, protocol.Request("c1", "n1", 2, protocol.Topology{Topology: map[string][]string{"n1": {"n2"}}}))
	stepOne(t, n, protocol.Request("c1", "n1", 3, protocol.Broadcast{Message: 9}))

	require.Len(t, n.GossipRound(), 1)
	require.Len(t, n.GossipRound(), 1, "resent until n2 is observed with the value")

	stepOne(t, n, protocol.Request("n2", "n1", 0, protocol.Broadcast{Message: 9}))
	assert.Empty(t, n.GossipRound())
}

func TestGossipRound_OptimisticPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ManualGossip = true
	cfg.EstimatePolicy = gossip.PolicyOptimistic
	n, err := New(cfg, nil, &recorder{})
	require.NoError(t, err)

	initNode(t, n, "n1", "n1", "n2")
	stepOne(t, n, protocol.Request("c1", "n1", 2, protocol.Topology{Topology: map[string][]string{"n1": {"n2"}}}))
	stepOne(t, n, protocol.Request("c1", "n1", 3, protocol.Broadcast{Message: 9}))

	require.Len(t, n.GossipRound(), 1)
	assert.Empty(t, n.GossipRound())
}

func TestRun_StdioSession(t *testing.T) {
	input := strings.Join([]string{
		`{"src":"c0","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1","n2"]}}`,
		`{"src":"c0","dest":"n1","body":{"type":"topology","msg_id":2,"topology":{"n1":["n2"],"n2":["n1"]}}}`,
		`{"src":"c1","dest":"n1","body":{"type":"broadcast","msg_id":3,"message":11}}`,
		`{"src":"n2","dest":"n1","body":{"type":"broadcast_ok","msg_id":0,"in_reply_to":7}}`,
		`{"src":"c1","dest":"n1","body":{"type":"read","msg_id":4}}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	stdio := transport.NewStdio(strings.NewReader(input), &out)

	cfg := DefaultConfig()
	cfg.ManualGossip = true
	n, err := New(cfg, nil, stdio)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, n.Run(ctx, stdio), "end of input is a clean shutdown")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4, "the broadcast_ok from n2 gets no reply")

	var types []protocol.Type
	for i, line := range lines {
		msg, err := protocol.Decode([]byte(line))
		require.NoError(t, err)
		types = append(types, msg.Body.Type())
		assert.Equal(t, uint64(i), *msg.Body.MsgID)
	}
	assert.Equal(t, []protocol.Type{
		protocol.TypeInitOk, protocol.TypeTopologyOk, protocol.TypeBroadcastOk, protocol.TypeReadOk,
	}, types)
	assert.Contains(t, lines[3], `"messages":[11]`)
}

func TestRun_MalformedInputIsFatal(t *testing.T) {
	input := `{"src":"c0","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1"]}}` + "\n{not json\n"
	var out bytes.Buffer
	stdio := transport.NewStdio(strings.NewReader(input), &out)

	cfg := DefaultConfig()
	cfg.ManualGossip = true
	n, err := New(cfg, nil, stdio)
	require.NoError(t, err)

	err = n.Run(context.Background(), stdio)
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrMalformed)
}

func TestRun_ContextCancelStops(t *testing.T) {
	net := transport.NewNetwork()
	ep, err := net.Register("n1")
	require.NoError(t, err)

	n, err := New(DefaultConfig(), nil, ep)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx, ep) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("node did not stop")
	}

	assert.ErrorIs(t, n.TriggerGossip(), ErrStopped)
	assert.ErrorIs(t, n.Start(ep), ErrAlreadyStarted)
}

func TestSend_FailureIsNotFatal(t *testing.T) {
	rec := &recorder{err: errors.New("pipe closed")}
	cfg := DefaultConfig()
	cfg.ManualGossip = true
	n, err := New(cfg, nil, rec)
	require.NoError(t, err)

	n.send([]protocol.Message{initNode(t, n, "n1", "n1")})
	assert.Empty(t, rec.sent())
}
