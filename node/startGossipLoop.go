package node

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/adamgarcia4/goLearning/gloomers/metrics"
	"github.com/adamgarcia4/goLearning/gloomers/protocol"
	"github.com/adamgarcia4/goLearning/gloomers/queue"
	"github.com/adamgarcia4/goLearning/gloomers/transport"
)

/**
Scheduling

Two producers feed one consumer through an unbounded FIFO:

	input producer  -- one item per decoded line -------\
	                                                     >-- work queue --> consumer
	ticker producer -- one gossip trigger per interval --/

The consumer is the only goroutine that touches the workload and the msg_id counter,
so request handling and delta computation never interleave. The ticker only enqueues a
trigger; a round runs in queue order behind whatever input arrived first.

Shutdown:
	end of input   - the queue is closed, the consumer drains it and Wait returns nil
	malformed line - fatal; the node stops and Wait returns the decode error
	Stop / ctx     - the node stops at once, queued work is discarded
*/

type workItem struct {
	msg    protocol.Message
	gossip bool
}

// Start launches the producers and the consumer. It returns immediately.
func (n *Node) Start(rx transport.Receiver) error {
	if rx == nil {
		return fmt.Errorf("receiver is required")
	}
	if !n.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if n.ctx.Err() != nil {
		return ErrStopped
	}

	n.wg.Add(1)
	go n.consume()

	if !n.config.ManualGossip {
		n.wg.Add(1)
		go n.startGossipLoop()
		n.nodeLog().Info("automatic gossip enabled", zap.Duration("interval", n.config.GossipInterval))
	} else {
		n.nodeLog().Info("manual gossip mode enabled")
	}

	// Not tracked by wg: a blocked read on standard input cannot be interrupted, so
	// Wait must not depend on this goroutine returning.
	go n.readInput(rx)
	return nil
}

// TriggerGossip enqueues one gossip round.
func (n *Node) TriggerGossip() error {
	if !n.enqueue(workItem{gossip: true}) {
		return ErrStopped
	}
	return nil
}

func (n *Node) startGossipLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.config.GossipInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !n.enqueue(workItem{gossip: true}) {
				return
			}
		case <-n.ctx.Done():
			return
		}
	}
}

func (n *Node) readInput(rx transport.Receiver) {
	for {
		msg, err := rx.Recv(n.ctx)
		switch {
		case err == nil:
			if !n.enqueue(workItem{msg: msg}) {
				return
			}
		case errors.Is(err, io.EOF):
			n.nodeLog().Info("end of input")
			n.work.Close()
			return
		case n.ctx.Err() != nil:
			return
		default:
			n.nodeLog().Error("fatal input error", zap.Error(err))
			n.fail(err)
			return
		}
	}
}

func (n *Node) consume() {
	defer n.wg.Done()
	defer n.cancel()

	for {
		item, err := n.work.Pop(n.ctx)
		if errors.Is(err, queue.ErrClosed) {
			n.nodeLog().Debug("work queue drained")
			return
		}
		if err != nil || n.ctx.Err() != nil {
			return
		}
		n.observeDepth()

		if item.gossip {
			n.send(n.GossipRound())
			continue
		}
		n.send(n.Step(item.msg))
	}
}

func (n *Node) enqueue(item workItem) bool {
	if !n.work.Push(item) {
		return false
	}
	n.observeDepth()
	return true
}

// observeDepth publishes the queue depth and warns once each time it climbs past
// QueueWarnDepth.
func (n *Node) observeDepth() {
	depth := n.work.Len()
	metrics.QueueDepth.WithLabelValues(n.metricLabel()).Set(float64(depth))

	limit := n.config.QueueWarnDepth
	if limit <= 0 {
		return
	}
	if depth > limit && n.queueWarned.CompareAndSwap(false, true) {
		n.nodeLog().Warn("work queue is backing up", zap.Int("depth", depth), zap.Int("warn_depth", limit))
	} else if depth <= limit/2 {
		n.queueWarned.Store(false)
	}
}
