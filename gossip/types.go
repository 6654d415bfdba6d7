package gossip

/*
*
NodeID:

	Assigned by the harness in the init request.
	Unique within a run and stable for the process lifetime.
	Examples: "n1", "n2". Clients use ids like "c1".

Value:

	An unsigned integer submitted by a client through broadcast.
	Values are only ever added to a node's knowledge, never removed.
	Because every set in this package grows monotonically, merging two views is a
	plain union and the order in which values arrive does not matter.

Policy:

	Decides when a neighbor's estimate is updated.
	PolicyEvidence only trusts direct evidence: a neighbor is believed to know a
	value once it has been observed sending that value to us.
	PolicyOptimistic additionally assumes delivery as soon as a value is scheduled
	for sending, which stops resends but cannot recover values lost in transit.
*/

type NodeID string

type Value uint64

type Policy string

const (
	PolicyEvidence   Policy = "evidence"
	PolicyOptimistic Policy = "optimistic"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyEvidence || p == PolicyOptimistic
}
