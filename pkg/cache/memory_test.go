package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryDrainsHighestPriorityFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, Entry{Priority: PriorityMetrics, Kind: KindUsageMetric, Payload: []byte("metrics")}))
	require.NoError(t, m.Enqueue(ctx, Entry{Priority: PrioritySafety, Kind: KindSafetyEvent, Payload: []byte("safety")}))
	require.NoError(t, m.Enqueue(ctx, Entry{Priority: PriorityConversation, Kind: KindConversationTurn, Payload: []byte("turn")}))

	var order []Kind
	err := m.Drain(ctx, func(e Entry) error {
		order = append(order, e.Kind)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []Kind{KindSafetyEvent, KindConversationTurn, KindUsageMetric}, order)
	require.Equal(t, 0, m.Len())
}

func TestMemoryDrainStopsOnError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Enqueue(ctx, Entry{Priority: PrioritySafety}))
	require.NoError(t, m.Enqueue(ctx, Entry{Priority: PriorityConversation}))

	calls := 0
	_ = m.Drain(ctx, func(e Entry) error {
		calls++
		return errStop
	})
	require.Equal(t, 1, calls)
	require.Equal(t, 2, m.Len()) // nothing removed since the first call failed
}

func TestMemoryEnqueueAfterCloseFails(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	err := m.Enqueue(context.Background(), Entry{})
	require.ErrorIs(t, err, ErrClosed)
}

var errStop = errors.New("stop draining")
