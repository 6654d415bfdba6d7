package gossip

// Topology is the adjacency list installed by the harness. It is read-only once
// installed; a new install replaces it wholesale.
type Topology map[NodeID][]NodeID

// TopologyFromWire converts the topology request's string map.
func TopologyFromWire(in map[string][]string) Topology {
	t := make(Topology, len(in))
	for id, neighbors := range in {
		ns := make([]NodeID, 0, len(neighbors))
		for _, n := range neighbors {
			ns = append(ns, NodeID(n))
		}
		t[NodeID(id)] = ns
	}
	return t
}

// ToWire converts back to the string map carried by the topology request.
func (t Topology) ToWire() map[string][]string {
	out := make(map[string][]string, len(t))
	for id, neighbors := range t {
		ns := make([]string, 0, len(neighbors))
		for _, n := range neighbors {
			ns = append(ns, string(n))
		}
		out[string(id)] = ns
	}
	return out
}

// Neighbors returns a copy of id's neighbor list, or nil when id has none.
func (t Topology) Neighbors(id NodeID) []NodeID {
	ns, ok := t[id]
	if !ok {
		return nil
	}
	out := make([]NodeID, len(ns))
	copy(out, ns)
	return out
}

// Clone returns a deep copy.
func (t Topology) Clone() Topology {
	c := make(Topology, len(t))
	for id := range t {
		c[id] = t.Neighbors(id)
	}
	return c
}

// LineTopology links each node to the one before and after it.
func LineTopology(ids []NodeID) Topology {
	t := make(Topology, len(ids))
	for i, id := range ids {
		ns := make([]NodeID, 0, 2)
		if i > 0 {
			ns = append(ns, ids[i-1])
		}
		if i < len(ids)-1 {
			ns = append(ns, ids[i+1])
		}
		t[id] = ns
	}
	return t
}

// RingTopology is a line whose ends are also linked.
func RingTopology(ids []NodeID) Topology {
	if len(ids) < 3 {
		return LineTopology(ids)
	}
	t := LineTopology(ids)
	first, last := ids[0], ids[len(ids)-1]
	t[first] = append(t[first], last)
	t[last] = append(t[last], first)
	return t
}

// FullTopology links every node to every other node.
func FullTopology(ids []NodeID) Topology {
	t := make(Topology, len(ids))
	for _, id := range ids {
		ns := make([]NodeID, 0, len(ids)-1)
		for _, other := range ids {
			if other != id {
				ns = append(ns, other)
			}
		}
		t[id] = ns
	}
	return t
}
