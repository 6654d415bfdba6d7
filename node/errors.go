package node

import "errors"

var (
	ErrUnknownWorkload       = errors.New("unknown workload")
	ErrInvalidGossipInterval = errors.New("gossip interval must be positive")
	ErrUnknownPolicy         = errors.New("unknown estimate policy")
	ErrInvalidQueueWarnDepth = errors.New("queue warn depth must not be negative")

	ErrAlreadyStarted = errors.New("node already started")
	ErrStopped        = errors.New("node stopped")

	ErrNodeNotFound = errors.New("node not found")
	ErrRPCTimeout   = errors.New("timed out waiting for reply")
)
