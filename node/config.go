package node

import (
	"time"

	"github.com/adamgarcia4/goLearning/gloomers/gossip"
)

// Workload names accepted by Config.Workload
const (
	WorkloadBroadcast = "broadcast"
	WorkloadEcho      = "echo"
	WorkloadUniqueIDs = "unique-ids"
)

// Default configuration constants
const (
	DefaultWorkload       = WorkloadBroadcast
	DefaultGossipInterval = 1 * time.Second
	DefaultQueueWarnDepth = 10000
)

// Config holds the configuration for a node
type Config struct {
	// Which request handlers the node runs
	Workload string

	// Gossip configuration
	GossipInterval time.Duration
	ManualGossip   bool // If true, gossip rounds are triggered manually instead of on a timer
	EstimatePolicy gossip.Policy

	// Log a warning once this many work items are waiting. Zero disables the warning.
	QueueWarnDepth int
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Workload:       DefaultWorkload,
		GossipInterval: DefaultGossipInterval,
		EstimatePolicy: gossip.PolicyEvidence,
		QueueWarnDepth: DefaultQueueWarnDepth,
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	switch c.Workload {
	case WorkloadBroadcast, WorkloadEcho, WorkloadUniqueIDs:
	default:
		return ErrUnknownWorkload
	}
	if !c.ManualGossip && c.GossipInterval <= 0 {
		return ErrInvalidGossipInterval
	}
	if !c.EstimatePolicy.Valid() {
		return ErrUnknownPolicy
	}
	if c.QueueWarnDepth < 0 {
		return ErrInvalidQueueWarnDepth
	}
	return nil
}
