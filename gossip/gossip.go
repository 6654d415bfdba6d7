package gossip

import "fmt"

/**
The broadcast gossip state is responsible for:
- Holding every value this node has observed (SeenByMe)
- Estimating what each neighbor already knows (SeenByNode)
- Holding the neighbor view installed by the harness (Topology)
- Computing, per neighbor, which values still need to be sent (Delta)

It answers three questions:
1. What do I know? (Values)
2. What does neighbor n probably know? (EstimateFor)
3. What should I tell n next round? (Deltas)

Overview:
	State Models:
		ValueSet:
			Append-only set of values. Insert is an idempotent union.
		SeenByIndex:
			NodeID -> ValueSet. The self entry is a superset of everything we
			know; neighbor entries are estimates that only grow.
		Topology:
			NodeID -> []NodeID, replaced wholesale on install. Only the entry for
			self is used to pick gossip targets.
	Anti-entropy round (driven by the node, once per interval):
		known := SeenByNode[self]
		for each neighbor n of self:
			delta := known - SeenByNode[n]
			send broadcast(v) to n for every v in delta
		Nothing waits for acknowledgement. A lost message is simply part of the
		next round's delta, so repetition is the retry mechanism.
	Receiving broadcast(v) from sender s:
		SeenByMe += v
		SeenByNode[s] += v
		SeenByNode[self] += v

Concurrency:
	GossipState has no locks. The node's single consumer goroutine is the only
	caller, which serializes every mutation and every delta computation.

File Organization:
	gossip.go - GossipState struct and constructor
	types.go - NodeID, Value, Policy
	value_set.go - ValueSet
	seen_by.go - SeenByIndex
	topology.go - Topology and builders
	delta.go - Delta computation
*/

// GossipState is the replicated value set plus the bookkeeping needed to spread it.
type GossipState struct {
	selfID   NodeID
	policy   Policy
	seenByMe *ValueSet
	seenBy   *SeenByIndex
	topology Topology

	logFn func(format string, args ...interface{})
}

func NewGossipState(policy Policy, logFn func(format string, args ...interface{})) (*GossipState, error) {
	if policy == "" {
		policy = PolicyEvidence
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("unknown estimate policy %q", policy)
	}
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}

	return &GossipState{
		policy:   policy,
		seenByMe: NewValueSet(),
		seenBy:   NewSeenByIndex(),
		topology: Topology{},
		logFn:    logFn,
	}, nil
}

// SetSelf records the id assigned by init. Values observed before that are carried
// over to the new self entry.
func (g *GossipState) SetSelf(id NodeID) {
	g.selfID = id
	for _, v := range g.seenByMe.Snapshot() {
		g.seenBy.Record(id, v)
	}
}

func (g *GossipState) Self() NodeID {
	return g.selfID
}

func (g *GossipState) Policy() Policy {
	return g.policy
}

// Observe records that from told us about v. It reports whether v was new to this node.
func (g *GossipState) Observe(from NodeID, v Value) bool {
	added := g.seenByMe.Insert(v)
	g.seenBy.Record(from, v)
	g.seenBy.Record(g.selfID, v)
	if added {
		g.logFn("learned value %d from %s", v, from)
	}
	return added
}

// Values returns a point-in-time copy of everything this node knows.
func (g *GossipState) Values() []Value {
	return g.seenByMe.Snapshot()
}

// Len returns the number of known values.
func (g *GossipState) Len() int {
	return g.seenByMe.Len()
}

// InstallTopology replaces the neighbor view.
func (g *GossipState) InstallTopology(t Topology) {
	g.topology = t.Clone()
	g.logFn("installed topology, neighbors of %s: %v", g.selfID, g.topology.Neighbors(g.selfID))
}

// Neighbors returns this node's gossip targets from the installed topology. Self is
// never a target.
func (g *GossipState) Neighbors() []NodeID {
	ns := g.topology.Neighbors(g.selfID)
	out := ns[:0]
	for _, n := range ns {
		if n != g.selfID {
			out = append(out, n)
		}
	}
	return out
}

// EstimateFor returns a copy of the values attributed to node.
func (g *GossipState) EstimateFor(node NodeID) *ValueSet {
	return g.seenBy.Known(node)
}
