package tts

import (
	"context"
	"io"

	"github.com/snugbit/toygateway/pkg/buffer"
)

// MinChunkBytes is the minimum coalesced chunk size providers must reach
// before yielding (§4.4's "at least ~1 KiB").
const MinChunkBytes = 1024

// QueueCapacityBytes bounds the coalescing queue; a full queue blocks the
// vendor producer until the consumer drains it (§4.4, §4.8).
const QueueCapacityBytes = 100 * MinChunkBytes

// Coalescer accumulates a vendor's raw, sub-kilobyte output chunks into
// chunks of at least MinChunkBytes, using a bounded blocking byte queue as
// the producer/consumer bridge (§9's "thread/loop bridging": the vendor
// producer runs on its own goroutine and pushes through this queue).
type Coalescer struct {
	queue *buffer.BlockBuffer[byte]
}

// NewCoalescer creates a Coalescer with the default queue capacity.
func NewCoalescer() *Coalescer {
	return &Coalescer{queue: buffer.BlockN[byte](QueueCapacityBytes)}
}

// Push feeds raw vendor bytes into the queue. It blocks if the queue is
// full, providing backpressure on the vendor's producer goroutine.
func (c *Coalescer) Push(b []byte) error {
	_, err := c.queue.Write(b)
	return err
}

// CloseProducer signals that no more raw bytes will be pushed; Next drains
// any remainder and then returns io.EOF.
func (c *Coalescer) CloseProducer() error {
	return c.queue.CloseWrite()
}

// CloseWithError aborts the queue, surfacing err from Next to the consumer.
func (c *Coalescer) CloseWithError(err error) error {
	return c.queue.CloseWithError(err)
}

// Next returns the next coalesced chunk of at least MinChunkBytes, reading
// repeatedly from the queue until that threshold is reached or the producer
// closes. On producer close with a non-empty remainder, that remainder is
// returned as the final (possibly short) chunk; a subsequent call returns
// io.EOF.
func (c *Coalescer) Next(ctx context.Context) (Chunk, error) {
	var acc []byte
	buf := make([]byte, MinChunkBytes)
	for len(acc) < MinChunkBytes {
		if ctx.Err() != nil {
			return Chunk{}, ctx.Err()
		}
		n, err := c.queue.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
		}
		if err != nil {
			if len(acc) > 0 {
				return Chunk{Data: acc}, nil
			}
			if err == io.EOF {
				return Chunk{}, io.EOF
			}
			return Chunk{}, err
		}
	}
	return Chunk{Data: acc}, nil
}
