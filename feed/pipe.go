package feed

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rustyeddy/voitrader/market"
)

// Pipe is a buffered hand-off between one producer goroutine and one consumer.
type Pipe struct {
	ch         chan market.Book
	done       chan struct{}
	once       sync.Once
	err        error
	staleAfter time.Duration
}

// NewPipe creates a pipe holding up to buffer snapshots. When staleAfter is
// positive, Next returns ErrNoData if nothing arrives within that window.
func NewPipe(buffer int, staleAfter time.Duration) *Pipe {
	if buffer < 0 {
		buffer = 0
	}
	return &Pipe{
		ch:         make(chan market.Book, buffer),
		done:       make(chan struct{}),
		staleAfter: staleAfter,
	}
}

func (p *Pipe) Publish(ctx context.Context, b market.Book) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.ch <- b:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseWithError ends the stream. A nil err becomes io.EOF. Snapshots already
// buffered are still delivered before the error. Only the first call counts.
func (p *Pipe) CloseWithError(err error) {
	p.once.Do(func() {
		if err == nil {
			err = io.EOF
		}
		p.err = err
		close(p.done)
	})
}

// Close is CloseWithError(nil).
func (p *Pipe) Close() error {
	p.CloseWithError(nil)
	return nil
}

func (p *Pipe) Next(ctx context.Context) (market.Book, error) {
	select {
	case b := <-p.ch:
		return b, nil
	default:
	}

	var stale <-chan time.Time
	if p.staleAfter > 0 {
		t := time.NewTimer(p.staleAfter)
		defer t.Stop()
		stale = t.C
	}

	select {
	case b := <-p.ch:
		return b, nil
	case <-p.done:
		select {
		case b := <-p.ch:
			return b, nil
		default:
		}
		return market.Book{}, p.err
	case <-stale:
		return market.Book{}, ErrNoData
	case <-ctx.Done():
		return market.Book{}, ctx.Err()
	}
}
