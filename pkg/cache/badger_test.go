package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBadgerRoundTripsAndDrainsByPriority(t *testing.T) {
	dir := t.TempDir()
	b, err := OpenBadger(dir)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Enqueue(ctx, Entry{Priority: PriorityMetrics, Kind: KindUsageMetric, Payload: []byte("m")}))
	require.NoError(t, b.Enqueue(ctx, Entry{Priority: PrioritySafety, Kind: KindSafetyEvent, Payload: []byte("s")}))
	require.NoError(t, b.Enqueue(ctx, Entry{Priority: PriorityConversation, Kind: KindConversationTurn, Payload: []byte("c")}))

	var order []Kind
	err = b.Drain(ctx, func(e Entry) error {
		order = append(order, e.Kind)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []Kind{KindSafetyEvent, KindConversationTurn, KindUsageMetric}, order)

	// second drain should see nothing left
	var second []Kind
	require.NoError(t, b.Drain(ctx, func(e Entry) error {
		second = append(second, e.Kind)
		return nil
	}))
	require.Empty(t, second)
}
