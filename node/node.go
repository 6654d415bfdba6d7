package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/adamgarcia4/goLearning/gloomers/logger"
	"github.com/adamgarcia4/goLearning/gloomers/metrics"
	"github.com/adamgarcia4/goLearning/gloomers/protocol"
	"github.com/adamgarcia4/goLearning/gloomers/queue"
	"github.com/adamgarcia4/goLearning/gloomers/transport"
)

// Node is one protocol participant. It owns a workload and a msg_id counter, and
// serializes everything that touches them through a single consumer goroutine.
type Node struct {
	config   *Config
	workload Workload
	sender   transport.Sender
	ids      protocol.IDSource
	baseLog  *zap.Logger

	// Identity assigned by init
	mu      sync.RWMutex
	id      string
	nodeIDs []string
	log     *zap.Logger

	// Scheduling
	work        *queue.Unbounded[workItem]
	queueWarned atomic.Bool
	started     atomic.Bool

	// Lifecycle management
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	errOnce sync.Once
	err     error
}

// Option customizes a Node.
type Option func(*Node)

// WithIDSource replaces the default msg_id counter, which starts at 0.
func WithIDSource(ids protocol.IDSource) Option {
	return func(n *Node) { n.ids = ids }
}

// WithLogger replaces the global logger.
func WithLogger(l *zap.Logger) Option {
	return func(n *Node) { n.baseLog = l }
}

// New creates a node. When workload is nil it is built from config.Workload.
// Replies and gossip are written to sender.
func New(config *Config, workload Workload, sender transport.Sender, opts ...Option) (*Node, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		config: config,
		sender: sender,
		ids:    protocol.NewCounter(0),
		work:   queue.New[workItem](),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.baseLog == nil {
		n.baseLog = logger.L()
	}
	n.log = n.baseLog

	if workload == nil {
		w, err := NewWorkload(config, n.baseLog)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create workload: %w", err)
		}
		workload = w
	}
	n.workload = workload
	return n, nil
}

// ID returns the id assigned by init, or "" before init.
func (n *Node) ID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.id
}

// NodeIDs returns the cluster membership announced by init.
func (n *Node) NodeIDs() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, len(n.nodeIDs))
	copy(out, n.nodeIDs)
	return out
}

// Workload returns the node's workload. Its methods must not be called while the
// node is running.
func (n *Node) Workload() Workload {
	return n.workload
}

// GetConfig returns the node configuration (for external access)
func (n *Node) GetConfig() *Config {
	return n.config
}

func (n *Node) nodeLog() *zap.Logger {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.log
}

func (n *Node) metricLabel() string {
	if id := n.ID(); id != "" {
		return id
	}
	return "uninitialized"
}

// Step dispatches one inbound message and returns what should be sent in response.
// A request gets exactly one reply. A message carrying in_reply_to is a reply to
// something this node sent and gets none.
func (n *Node) Step(msg protocol.Message) []protocol.Message {
	start := time.Now()
	typ := msg.Body.Type()
	defer func() {
		metrics.HandleDuration.WithLabelValues(string(typ)).Observe(time.Since(start).Seconds())
	}()
	metrics.MessagesTotal.WithLabelValues(n.metricLabel(), string(typ), "in").Inc()

	if msg.Body.IsReply() {
		n.absorbReply(msg)
		return nil
	}

	var (
		payload protocol.Payload
		err     error
	)
	switch p := msg.Body.Payload.(type) {
	case protocol.Init:
		payload = n.handleInit(p)
	default:
		payload, err = n.workload.Handle(msg)
	}
	if err != nil {
		payload = n.errorPayload(msg, err)
	}

	reply := protocol.Reply(msg, n.ids.Next(), payload)
	return []protocol.Message{reply}
}

func (n *Node) handleInit(p protocol.Init) protocol.Payload {
	n.mu.Lock()
	if n.id != "" && n.id != p.NodeID {
		n.log.Warn("re-initialized with a different id", zap.String("new_id", p.NodeID))
	}
	n.id = p.NodeID
	n.nodeIDs = append([]string(nil), p.NodeIDs...)
	n.log = n.baseLog.With(zap.String("node", p.NodeID))
	log := n.log
	n.mu.Unlock()

	if initer, ok := n.workload.(Initializer); ok {
		initer.Init(p.NodeID, p.NodeIDs)
	}
	log.Info("initialized",
		zap.String("workload", n.workload.Name()),
		zap.Strings("node_ids", p.NodeIDs),
	)
	return protocol.InitOk{}
}

func (n *Node) errorPayload(msg protocol.Message, err error) protocol.Payload {
	var rpcErr *protocol.RPCError
	if !errors.As(err, &rpcErr) {
		rpcErr = protocol.NewError(protocol.Crash, err.Error())
	}
	n.nodeLog().Info("request failed",
		zap.String("src", msg.Src),
		zap.String("type", string(msg.Body.Type())),
		zap.Stringer("code", rpcErr.Code),
		zap.String("text", rpcErr.Text),
	)
	return rpcErr.AsPayload()
}

func (n *Node) absorbReply(msg protocol.Message) {
	log := n.nodeLog()
	if e, ok := msg.Body.Payload.(protocol.Error); ok {
		log.Warn("peer answered with an error",
			zap.String("src", msg.Src),
			zap.Stringer("code", e.Code),
			zap.String("text", e.Text),
		)
		return
	}
	if ce := log.Check(zap.DebugLevel, "reply absorbed"); ce != nil {
		ce.Write(zap.String("src", msg.Src), zap.String("type", string(msg.Body.Type())))
	}
}

// GossipRound runs one anti-entropy iteration and returns the requests to send. It
// returns nil before init or when the workload does not gossip.
func (n *Node) GossipRound() []protocol.Message {
	g, ok := n.workload.(Gossiper)
	self := n.ID()
	if !ok || self == "" {
		return nil
	}

	metrics.GossipRoundsTotal.WithLabelValues(self).Inc()
	outs := g.Gossip()
	if len(outs) == 0 {
		return nil
	}

	msgs := make([]protocol.Message, 0, len(outs))
	for _, o := range outs {
		msgs = append(msgs, protocol.Request(self, o.Dest, n.ids.Next(), o.Payload))
	}
	metrics.GossipValuesSent.WithLabelValues(self).Add(float64(len(msgs)))
	return msgs
}

// send writes msgs in order. A failed send is logged and dropped; the next gossip
// round covers anything that mattered.
func (n *Node) send(msgs []protocol.Message) {
	for _, m := range msgs {
		if err := n.sender.Send(m); err != nil {
			metrics.DroppedTotal.WithLabelValues("send_failed").Inc()
			n.nodeLog().Warn("send failed",
				zap.String("dest", m.Dest),
				zap.String("type", string(m.Body.Type())),
				zap.Error(err),
			)
			continue
		}
		metrics.MessagesTotal.WithLabelValues(n.metricLabel(), string(m.Body.Type()), "out").Inc()
	}
}

// Stop stops the node. Work already queued is discarded.
func (n *Node) Stop() {
	n.cancel()
	n.work.Close()
}

// Wait blocks until the node has stopped and returns the error that stopped it, or
// nil after end of input or Stop.
func (n *Node) Wait() error {
	n.wg.Wait()
	return n.err
}

// Run starts the node on rx and blocks until input ends, a fatal error occurs, or
// ctx is done.
func (n *Node) Run(ctx context.Context, rx transport.Receiver) error {
	if err := n.Start(rx); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, n.Stop)
	defer stop()
	return n.Wait()
}

// fail records the first fatal error and stops the node.
func (n *Node) fail(err error) {
	n.errOnce.Do(func() {
		n.err = err
	})
	n.Stop()
}
