package gossip

/**
The seen-by index is the per-node view of who knows what.
Fields:
	known (Map[NodeID]*ValueSet)
		One entry for every node we have directly heard from, plus self.
Entries:
	self - authoritative: everything this node knows
	neighbor - an estimate, grown whenever the neighbor is observed sending a value
		(and, under PolicyOptimistic, whenever a value is scheduled for it)
Used for:
	Computing the delta to send each neighbor on a gossip round
	Avoiding resends of values a neighbor has already shown it knows
*/

type SeenByIndex struct {
	known map[NodeID]*ValueSet
}

func NewSeenByIndex() *SeenByIndex {
	return &SeenByIndex{known: make(map[NodeID]*ValueSet)}
}

// Record attributes v to node's knowledge and reports whether it was new for node.
func (idx *SeenByIndex) Record(node NodeID, v Value) bool {
	set, ok := idx.known[node]
	if !ok {
		set = NewValueSet()
		idx.known[node] = set
	}
	return set.Insert(v)
}

// Known returns a copy of the values attributed to node. Absent nodes yield an empty set.
func (idx *SeenByIndex) Known(node NodeID) *ValueSet {
	if set, ok := idx.known[node]; ok {
		return set.Clone()
	}
	return NewValueSet()
}

// Nodes returns the nodes that have an entry in the index.
func (idx *SeenByIndex) Nodes() []NodeID {
	out := make([]NodeID, 0, len(idx.known))
	for id := range idx.known {
		out = append(out, id)
	}
	return out
}
