package node

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/adamgarcia4/goLearning/gloomers/gossip"
	"github.com/adamgarcia4/goLearning/gloomers/metrics"
	"github.com/adamgarcia4/goLearning/gloomers/protocol"
)

// BroadcastWorkload replicates every broadcast value to the whole cluster by
// anti-entropy gossip over the installed topology.
type BroadcastWorkload struct {
	state *gossip.GossipState
	log   *zap.Logger
	self  string
}

// NewBroadcastWorkload creates the workload. An empty policy means PolicyEvidence.
func NewBroadcastWorkload(policy gossip.Policy, log *zap.Logger) (*BroadcastWorkload, error) {
	if log == nil {
		log = zap.NewNop()
	}
	w := &BroadcastWorkload{log: log}

	state, err := gossip.NewGossipState(policy, func(format string, args ...interface{}) {
		w.log.Debug(fmt.Sprintf(format, args...))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gossip state: %w", err)
	}
	w.state = state
	return w, nil
}

func (w *BroadcastWorkload) Name() string { return WorkloadBroadcast }

// Init records the node id so that deltas are computed from the right self entry.
func (w *BroadcastWorkload) Init(self string, _ []string) {
	w.self = self
	w.log = w.log.With(zap.String("node", self))
	w.state.SetSelf(gossip.NodeID(self))
}

func (w *BroadcastWorkload) Handle(msg protocol.Message) (protocol.Payload, error) {
	switch p := msg.Body.Payload.(type) {
	case protocol.Broadcast:
		if w.state.Observe(gossip.NodeID(msg.Src), gossip.Value(p.Message)) {
			metrics.KnownValues.WithLabelValues(w.self).Set(float64(w.state.Len()))
		}
		return protocol.BroadcastOk{}, nil

	case protocol.Read:
		return protocol.ReadOk{Messages: w.Values()}, nil

	case protocol.Topology:
		w.state.InstallTopology(gossip.TopologyFromWire(p.Topology))
		w.log.Info("topology installed",
			zap.Int("nodes", len(p.Topology)),
			zap.Strings("neighbors", nodeIDStrings(w.state.Neighbors())),
		)
		return protocol.TopologyOk{}, nil

	default:
		return nil, protocol.ErrNotSupported(msg.Body.Type())
	}
}

// Gossip turns this round's deltas into one broadcast request per value.
func (w *BroadcastWorkload) Gossip() []Outbound {
	deltas := w.state.Deltas()
	if len(deltas) == 0 {
		return nil
	}

	var out []Outbound
	for _, d := range deltas {
		w.log.Debug("gossip delta",
			zap.String("neighbor", string(d.Neighbor)),
			zap.Int("values", len(d.Values)),
		)
		for _, v := range d.Values {
			out = append(out, Outbound{
				Dest:    string(d.Neighbor),
				Payload: protocol.Broadcast{Message: uint64(v)},
			})
		}
	}
	return out
}

// Values returns every value the node knows, in ascending order. Never nil, so a
// read before any broadcast encodes as an empty list.
func (w *BroadcastWorkload) Values() []uint64 {
	vs := w.state.Values()
	out := make([]uint64, len(vs))
	for i, v := range vs {
		out[i] = uint64(v)
	}
	return out
}

// State exposes the underlying gossip state for inspection in tests.
func (w *BroadcastWorkload) State() *gossip.GossipState {
	return w.state
}

func nodeIDStrings(ids []gossip.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
