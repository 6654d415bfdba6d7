package gossip

/*
Delta Computation

A delta is what one node believes a neighbor is missing:

	delta(n) = SeenByNode[self] - SeenByNode[n]

Both sides are copied before the difference is taken, so the result is a point-in-time
answer that later mutations cannot disturb. Deltas are recomputed from scratch every
round instead of keeping a per-neighbor cursor; duplicated or reordered gossip is
harmless because receiving a value twice is a no-op.
*/

// Delta is the set of values to send one neighbor this round.
type Delta struct {
	Neighbor NodeID
	Values   []Value
}

// Deltas computes the values each neighbor is believed to be missing. Neighbors with
// nothing to send are left out; the order follows the installed neighbor list.
//
// Under PolicyOptimistic the neighbor's estimate is grown by the delta immediately, so
// the same values are not offered again next round.
func (g *GossipState) Deltas() []Delta {
	neighbors := g.Neighbors()
	if len(neighbors) == 0 {
		return nil
	}

	known := g.seenBy.Known(g.selfID)
	deltas := make([]Delta, 0, len(neighbors))
	for _, n := range neighbors {
		missing := known.Difference(g.seenBy.Known(n))
		if len(missing) == 0 {
			continue
		}
		deltas = append(deltas, Delta{Neighbor: n, Values: missing})

		if g.policy == PolicyOptimistic {
			for _, v := range missing {
				g.seenBy.Record(n, v)
			}
		}
	}
	return deltas
}
