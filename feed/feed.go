// Package feed connects external market data to the engine. Producers push
// order-book snapshots into a Pipe; the engine pulls them with Next.
package feed

import (
	"context"
	"errors"

	"github.com/rustyeddy/voitrader/market"
)

// ErrNoData means no snapshot arrived within the staleness window. The stream
// is still open; callers should skip this tick and try again.
var ErrNoData = errors.New("feed: no data")

// ErrClosed is returned by Publish once the pipe has been closed.
var ErrClosed = errors.New("feed: closed")

// Source is the engine's view of a feed. Next returns io.EOF at the end of the
// stream, ErrNoData when the feed is stale and any other error on failure.
type Source interface {
	Next(ctx context.Context) (market.Book, error)
}

// Sink receives snapshots from a producer.
type Sink interface {
	Publish(ctx context.Context, b market.Book) error
}

// Producer reads snapshots from somewhere and publishes them until the
// input ends (nil), the context ends, or it fails.
type Producer interface {
	Run(ctx context.Context, sink Sink) error
}

// Pump runs p into pipe and closes the pipe with the producer's result, so a
// clean end of input reaches the consumer as io.EOF.
func Pump(ctx context.Context, p Producer, pipe *Pipe) error {
	err := p.Run(ctx, pipe)
	pipe.CloseWithError(err)
	return err
}
