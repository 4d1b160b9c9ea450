package tts

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoalescerCombinesSubKilobyteChunks(t *testing.T) {
	c := NewCoalescer()
	go func() {
		for i := 0; i < 20; i++ {
			_ = c.Push(make([]byte, 100))
		}
		_ = c.CloseProducer()
	}()

	chunk, err := c.Next(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunk.Data), MinChunkBytes)

	chunk2, err := c.Next(context.Background())
	require.NoError(t, err)
	require.Greater(t, len(chunk2.Data), 0)

	_, err = c.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestCoalescerPropagatesProducerError(t *testing.T) {
	c := NewCoalescer()
	wantErr := errors.New("vendor exploded mid-stream")
	_ = c.CloseWithError(wantErr)

	_, err := c.Next(context.Background())
	require.Error(t, err)
}
