package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adamgarcia4/goLearning/gloomers/gossip"
	"github.com/adamgarcia4/goLearning/gloomers/logger"
	"github.com/adamgarcia4/goLearning/gloomers/protocol"
	"github.com/adamgarcia4/goLearning/gloomers/transport"
)

// ClientID is the endpoint the manager uses to talk to its nodes, playing the part of
// the test harness.
const ClientID = "c0"

// DefaultRPCTimeout bounds a client request that has no deadline of its own.
const DefaultRPCTimeout = 2 * time.Second

// TopologyKind names a topology shape the manager can install.
type TopologyKind string

const (
	TopologyLine TopologyKind = "line"
	TopologyRing TopologyKind = "ring"
	TopologyFull TopologyKind = "full"
)

// Next cycles line -> ring -> full -> line.
func (k TopologyKind) Next() TopologyKind {
	switch k {
	case TopologyLine:
		return TopologyRing
	case TopologyRing:
		return TopologyFull
	default:
		return TopologyLine
	}
}

func (k TopologyKind) build(ids []gossip.NodeID) (gossip.Topology, error) {
	switch k {
	case TopologyLine:
		return gossip.LineTopology(ids), nil
	case TopologyRing:
		return gossip.RingTopology(ids), nil
	case TopologyFull:
		return gossip.FullTopology(ids), nil
	default:
		return nil, fmt.Errorf("unknown topology %q", k)
	}
}

// NodeView is one node's answer to a read, for display.
type NodeView struct {
	ID     string
	Values []uint64
	Err    error
}

// Manager runs a cluster of nodes in-process on a simulated network and drives them
// through the same protocol messages a test harness would send.
type Manager struct {
	config     *Config
	network    *transport.Network
	client     *transport.Endpoint
	clientIDs  *protocol.Counter
	rpcTimeout time.Duration
	log        *zap.Logger

	nodes    []*Node        // maintain order with slice
	order    []string       // node IDs, parallel to nodes
	nodeMap  map[string]int // map node ID to index for quick lookup
	topology TopologyKind
	nextID   int // monotonically increasing counter for unique node IDs
	mu       sync.RWMutex

	pending   map[uint64]chan protocol.Message
	pendingMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a manager whose nodes all use config. A nil config means
// DefaultConfig.
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	network := transport.NewNetwork()
	client, err := network.Register(ClientID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:     config,
		network:    network,
		client:     client,
		clientIDs:  protocol.NewCounter(0),
		rpcTimeout: DefaultRPCTimeout,
		log:        logger.L().With(zap.String("node", ClientID)),
		nodeMap:    make(map[string]int),
		topology:   TopologyLine,
		nextID:     1, // start node IDs at 1
		pending:    make(map[uint64]chan protocol.Message),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go m.receiveReplies()
	return m, nil
}

// Network exposes the simulated network, e.g. to inspect links.
func (m *Manager) Network() *transport.Network {
	return m.network
}

// CreateNode starts a new node, initializes it and reinstalls the current topology so
// the node is wired into the cluster.
func (m *Manager) CreateNode(ctx context.Context) (*Node, error) {
	m.mu.Lock()
	// Generate unique node ID using monotonically increasing counter
	nodeID := fmt.Sprintf("n%d", m.nextID)
	m.nextID++

	ep, err := m.network.Register(nodeID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	cfg := *m.config
	node, err := New(&cfg, nil, ep)
	if err != nil {
		ep.Close()
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	if err := node.Start(ep); err != nil {
		ep.Close()
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to start node: %w", err)
	}

	m.nodes = append(m.nodes, node)
	m.order = append(m.order, nodeID)
	m.nodeMap[nodeID] = len(m.nodes) - 1
	members := m.idsLocked()
	kind := m.topology
	m.mu.Unlock()

	reply, err := m.call(ctx, nodeID, protocol.Init{NodeID: nodeID, NodeIDs: members})
	if err != nil {
		return node, fmt.Errorf("init %s: %w", nodeID, err)
	}
	if _, ok := reply.(protocol.InitOk); !ok {
		return node, fmt.Errorf("init %s: unexpected reply %s", nodeID, reply.Type())
	}
	m.log.Info("node created", zap.String("id", nodeID))

	if err := m.InstallTopology(ctx, kind); err != nil {
		return node, err
	}
	return node, nil
}

// DeleteNode stops and removes a node by its index in the list, then reinstalls the
// topology over the remaining nodes.
func (m *Manager) DeleteNode(ctx context.Context, index int) error {
	m.mu.Lock()
	if index < 0 || index >= len(m.nodes) {
		m.mu.Unlock()
		return fmt.Errorf("invalid node index: %d", index)
	}

	node := m.nodes[index]
	nodeID := m.order[index]

	m.nodes = append(m.nodes[:index], m.nodes[index+1:]...)
	m.order = append(m.order[:index], m.order[index+1:]...)
	delete(m.nodeMap, nodeID)
	for i, id := range m.order {
		m.nodeMap[id] = i
	}
	kind := m.topology
	remaining := len(m.nodes)
	m.mu.Unlock()

	node.Stop()
	m.network.Unregister(nodeID)
	m.log.Info("node deleted", zap.String("id", nodeID))

	if remaining == 0 {
		return nil
	}
	return m.InstallTopology(ctx, kind)
}

// GetNodes returns a list of all nodes (maintains order)
func (m *Manager) GetNodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Return a copy to avoid race conditions
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	return nodes
}

// Node looks a node up by id.
func (m *Manager) Node(id string) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.nodeMap[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return m.nodes[i], nil
}

// Topology returns the kind of topology last installed.
func (m *Manager) Topology() TopologyKind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.topology
}

// NodeIDs returns the ids of all nodes in creation order.
func (m *Manager) NodeIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idsLocked()
}

func (m *Manager) idsLocked() []string {
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	return ids
}

// InstallTopology sends a topology message built from kind to every node.
func (m *Manager) InstallTopology(ctx context.Context, kind TopologyKind) error {
	ids := m.NodeIDs()
	gids := make([]gossip.NodeID, len(ids))
	for i, id := range ids {
		gids[i] = gossip.NodeID(id)
	}
	topo, err := kind.build(gids)
	if err != nil {
		return err
	}
	wire := topo.ToWire()

	m.mu.Lock()
	m.topology = kind
	m.mu.Unlock()

	var errs []error
	for _, id := range ids {
		reply, err := m.call(ctx, id, protocol.Topology{Topology: wire})
		if err != nil {
			errs = append(errs, fmt.Errorf("topology %s: %w", id, err))
			continue
		}
		if _, ok := reply.(protocol.TopologyOk); !ok {
			errs = append(errs, fmt.Errorf("topology %s: unexpected reply %s", id, reply.Type()))
		}
	}
	m.log.Info("topology installed", zap.String("kind", string(kind)), zap.Int("nodes", len(ids)))
	return errors.Join(errs...)
}

// Broadcast asks node id to add value to the replicated set.
func (m *Manager) Broadcast(ctx context.Context, id string, value uint64) error {
	reply, err := m.call(ctx, id, protocol.Broadcast{Message: value})
	if err != nil {
		return err
	}
	if _, ok := reply.(protocol.BroadcastOk); !ok {
		return fmt.Errorf("broadcast to %s: unexpected reply %s", id, reply.Type())
	}
	return nil
}

// Read returns the values node id currently knows.
func (m *Manager) Read(ctx context.Context, id string) ([]uint64, error) {
	reply, err := m.call(ctx, id, protocol.Read{})
	if err != nil {
		return nil, err
	}
	readOk, ok := reply.(protocol.ReadOk)
	if !ok {
		return nil, fmt.Errorf("read from %s: unexpected reply %s", id, reply.Type())
	}
	return readOk.Messages, nil
}

// ReadAll reads every node. Nodes that cannot be reached carry the error instead.
func (m *Manager) ReadAll(ctx context.Context) []NodeView {
	ids := m.NodeIDs()
	views := make([]NodeView, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			values, err := m.Read(ctx, id)
			views[i] = NodeView{ID: id, Values: values, Err: err}
		}(i, id)
	}
	wg.Wait()
	return views
}

// GossipAll triggers one gossip round on every node.
func (m *Manager) GossipAll() {
	for _, n := range m.GetNodes() {
		if err := n.TriggerGossip(); err != nil {
			m.log.Warn("gossip trigger failed", zap.String("id", n.ID()), zap.Error(err))
		}
	}
}

// Partition cuts the link between a and b.
func (m *Manager) Partition(a, b string) {
	m.network.Partition(a, b)
	m.log.Info("link cut", zap.String("a", a), zap.String("b", b))
}

// Isolate cuts every link of id, including the one to the client.
func (m *Manager) Isolate(id string) {
	m.network.Isolate(id)
	m.log.Info("node isolated", zap.String("id", id))
}

// Heal restores every link.
func (m *Manager) Heal() {
	m.network.Heal()
	m.log.Info("network healed")
}

// StopAll stops all nodes and the client.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	ids := m.idsLocked()
	m.nodes = nil
	m.order = nil
	m.nodeMap = make(map[string]int)
	m.mu.Unlock()

	var errs []error
	for i, node := range nodes {
		node.Stop()
		if err := node.Wait(); err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", ids[i], err))
		}
		m.network.Unregister(ids[i])
	}

	m.cancel()
	m.client.Close()
	<-m.done

	if len(errs) > 0 {
		return fmt.Errorf("errors stopping nodes: %w", errors.Join(errs...))
	}
	return nil
}

// call sends p to dest as the client and waits for the matching reply. An error body
// is returned as a *protocol.RPCError.
func (m *Manager) call(ctx context.Context, dest string, p protocol.Payload) (protocol.Payload, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.rpcTimeout)
		defer cancel()
	}

	msgID := m.clientIDs.Next()
	ch := make(chan protocol.Message, 1)
	m.pendingMu.Lock()
	m.pending[msgID] = ch
	m.pendingMu.Unlock()
	defer func() {
		m.pendingMu.Lock()
		delete(m.pending, msgID)
		m.pendingMu.Unlock()
	}()

	if err := m.client.Send(protocol.Request(ClientID, dest, msgID, p)); err != nil {
		return nil, fmt.Errorf("send %s to %s: %w", p.Type(), dest, err)
	}

	select {
	case reply := <-ch:
		if e, ok := reply.Body.Payload.(protocol.Error); ok {
			return nil, protocol.NewError(e.Code, e.Text)
		}
		return reply.Body.Payload, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s to %s: %w", p.Type(), dest, ErrRPCTimeout)
	case <-m.ctx.Done():
		return nil, fmt.Errorf("%s to %s: %w", p.Type(), dest, ErrStopped)
	}
}

func (m *Manager) receiveReplies() {
	defer close(m.done)
	for {
		msg, err := m.client.Recv(m.ctx)
		if err != nil {
			return
		}
		if msg.Body.InReplyTo == nil {
			m.log.Debug("ignoring request sent to client", zap.String("src", msg.Src))
			continue
		}

		m.pendingMu.Lock()
		ch, ok := m.pending[*msg.Body.InReplyTo]
		m.pendingMu.Unlock()
		if !ok {
			m.log.Debug("late reply", zap.String("src", msg.Src), zap.Uint64("in_reply_to", *msg.Body.InReplyTo))
			continue
		}
		select {
		case ch <- msg:
		default:
		}
	}
}
