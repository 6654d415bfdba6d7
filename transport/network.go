package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/adamgarcia4/goLearning/gloomers/metrics"
	"github.com/adamgarcia4/goLearning/gloomers/protocol"
	"github.com/adamgarcia4/goLearning/gloomers/queue"
)

// Network is an in-process stand-in for the harness's virtual network. Every message
// is round-tripped through the wire encoding so endpoints never share memory.
// Messages to unknown endpoints or across a cut link are dropped silently.
type Network struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	cut       map[link]bool
	isolated  map[string]bool
}

type link struct {
	a, b string
}

func newLink(a, b string) link {
	if b < a {
		a, b = b, a
	}
	return link{a: a, b: b}
}

func NewNetwork() *Network {
	return &Network{
		endpoints: make(map[string]*Endpoint),
		cut:       make(map[link]bool),
		isolated:  make(map[string]bool),
	}
}

// Register attaches a new endpoint with the given id.
func (n *Network) Register(id string) (*Endpoint, error) {
	if id == "" {
		return nil, errors.New("endpoint id must be set")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.endpoints[id]; exists {
		return nil, fmt.Errorf("endpoint %s already registered", id)
	}
	ep := &Endpoint{id: id, net: n, inbox: queue.New[protocol.Message]()}
	n.endpoints[id] = ep
	return ep, nil
}

// Unregister detaches id. Its pending messages can still be received, after which
// Recv returns io.EOF.
func (n *Network) Unregister(id string) {
	n.mu.Lock()
	ep, ok := n.endpoints[id]
	delete(n.endpoints, id)
	n.mu.Unlock()

	if ok {
		ep.inbox.Close()
	}
}

// Partition cuts the link between a and b in both directions.
func (n *Network) Partition(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cut[newLink(a, b)] = true
}

// Isolate cuts every link of id.
func (n *Network) Isolate(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.isolated[id] = true
}

// Heal restores every link.
func (n *Network) Heal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cut = make(map[link]bool)
	n.isolated = make(map[string]bool)
}

// Connected reports whether a message from a to b would currently be delivered.
func (n *Network) Connected(a, b string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connectedLocked(a, b)
}

func (n *Network) connectedLocked(a, b string) bool {
	return !n.isolated[a] && !n.isolated[b] && !n.cut[newLink(a, b)]
}

func (n *Network) deliver(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	n.mu.RLock()
	dst, ok := n.endpoints[msg.Dest]
	connected := n.connectedLocked(msg.Src, msg.Dest)
	n.mu.RUnlock()

	if !ok {
		metrics.DroppedTotal.WithLabelValues("unknown_destination").Inc()
		return nil
	}
	if !connected {
		metrics.DroppedTotal.WithLabelValues("partitioned").Inc()
		return nil
	}

	decoded, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	if !dst.inbox.Push(decoded) {
		metrics.DroppedTotal.WithLabelValues("closed").Inc()
	}
	return nil
}

// Endpoint is one attachment point on a Network. It is both the Sender and the
// Receiver for whoever owns that id.
type Endpoint struct {
	id    string
	net   *Network
	inbox *queue.Unbounded[protocol.Message]
}

func (e *Endpoint) ID() string {
	return e.id
}

func (e *Endpoint) Send(msg protocol.Message) error {
	return e.net.deliver(msg)
}

func (e *Endpoint) Recv(ctx context.Context) (protocol.Message, error) {
	msg, err := e.inbox.Pop(ctx)
	if errors.Is(err, queue.ErrClosed) {
		return protocol.Message{}, io.EOF
	}
	return msg, err
}

// Close detaches the endpoint from its network.
func (e *Endpoint) Close() {
	e.net.Unregister(e.id)
}
