// Package cache implements the gateway's write-behind queue contract (C7):
// durability for conversation turns, safety events, and usage metrics that
// must survive a gateway restart, decoupled from session lifecycle.
//
// Loosely grounded (class/def signatures only, read from
// original_source/apps/raspberry-pi/src/sync_manager.py and
// conversation_cache.py) on the original device client's priority-ordered
// write-behind sync loop; expressed here as a gateway-side Go interface
// plus an in-memory and a badger-backed implementation, since the original
// spec.md only names this as an external "write-behind queue" contract.
package cache

import (
	"context"
	"fmt"

	"github.com/snugbit/toygateway/pkg/jsontime"
)

// Priority orders queue draining: safety events ahead of conversation
// turns ahead of usage metrics.
type Priority int

const (
	PriorityMetrics Priority = iota
	PriorityConversation
	PrioritySafety
)

// Kind names the category of telemetry an Entry carries.
type Kind string

const (
	KindConversationTurn Kind = "conversation_turn"
	KindSafetyEvent      Kind = "safety_event"
	KindUsageMetric      Kind = "usage_metric"
)

// Entry is one write-behind queue record.
type Entry struct {
	Priority  Priority
	Kind      Kind
	SessionID string
	DeviceID  string
	Payload   []byte
	CreatedAt jsontime.Unix
}

// Queue is the write-behind durability contract.
type Queue interface {
	// Enqueue durably records entry. It must not block on any network
	// call; implementations that need one do it asynchronously.
	Enqueue(ctx context.Context, entry Entry) error
	// Drain iterates every queued entry highest-priority-first, removing
	// each only after fn returns nil for it. A fn error stops the drain
	// and leaves the remaining entries (including the failed one) queued
	// for the next attempt.
	Drain(ctx context.Context, fn func(Entry) error) error
	Close() error
}

// ErrClosed is returned by operations on a closed Queue.
var ErrClosed = fmt.Errorf("cache: queue is closed")
