package browser

import (
	"context"
	"sync"
	"time"
)

// exchangeBufferSize bounds memory held by captured response bodies.
// Older exchanges are evicted first; consumers always want the newest
// response anyway since each search supersedes the previous one.
const exchangeBufferSize = 64

// Exchange is one captured network response, body included. Seq is
// assigned by the buffer on Add and grows monotonically, so a consumer
// can tell responses captured after a given action from earlier ones.
type Exchange struct {
	Seq        uint64
	URL        string
	Method     string
	Status     int
	Headers    map[string]string
	Body       []byte
	ReceivedAt time.Time
}

// Header returns a response header value, matching case-insensitively
// on the canonical lowercase form used at capture time.
func (e Exchange) Header(name string) string {
	return e.Headers[name]
}

// ExchangeBuffer is a fixed-capacity ring of captured exchanges.
// Writers append from the browser event loop; readers poll or block
// for an exchange matching a predicate.
type ExchangeBuffer struct {
	mu       sync.Mutex
	ring     []Exchange
	start    int
	length   int
	seq      uint64
	appended chan struct{}
}

func NewExchangeBuffer() *ExchangeBuffer {
	return &ExchangeBuffer{
		ring:     make([]Exchange, exchangeBufferSize),
		appended: make(chan struct{}),
	}
}

// Add appends an exchange, evicting the oldest when full, and wakes
// every goroutine blocked in Wait.
func (b *ExchangeBuffer) Add(ex Exchange) {
	b.mu.Lock()
	b.seq++
	ex.Seq = b.seq
	if b.length == len(b.ring) {
		b.ring[b.start] = ex
		b.start = (b.start + 1) % len(b.ring)
	} else {
		b.ring[(b.start+b.length)%len(b.ring)] = ex
		b.length++
	}
	close(b.appended)
	b.appended = make(chan struct{})
	b.mu.Unlock()
}

// Watermark returns the sequence number of the most recently added
// exchange. Record it before triggering a request and only accept
// exchanges with Seq beyond it to skip stale captures from earlier
// submissions of the same form.
func (b *ExchangeBuffer) Watermark() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Len returns the number of buffered exchanges.
func (b *ExchangeBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// Snapshot returns the buffered exchanges, oldest first.
func (b *ExchangeBuffer) Snapshot() []Exchange {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Exchange, b.length)
	for i := 0; i < b.length; i++ {
		out[i] = b.ring[(b.start+i)%len(b.ring)]
	}
	return out
}

// Latest returns the newest exchange satisfying match. When several
// responses raced in, only the most recent one reflects the page the
// user is actually looking at.
func (b *ExchangeBuffer) Latest(match func(Exchange) bool) (Exchange, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := b.length - 1; i >= 0; i-- {
		ex := b.ring[(b.start+i)%len(b.ring)]
		if match(ex) {
			return ex, true
		}
	}
	return Exchange{}, false
}

// Wait blocks until an exchange satisfying match is buffered, the
// timeout elapses, or ctx is done. An already-buffered match returns
// immediately.
func (b *ExchangeBuffer) Wait(ctx context.Context, match func(Exchange) bool, timeout time.Duration) (Exchange, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		b.mu.Lock()
		for i := b.length - 1; i >= 0; i-- {
			ex := b.ring[(b.start+i)%len(b.ring)]
			if match(ex) {
				b.mu.Unlock()
				return ex, nil
			}
		}
		appended := b.appended
		b.mu.Unlock()

		select {
		case <-appended:
		case <-deadline.C:
			return Exchange{}, context.DeadlineExceeded
		case <-ctx.Done():
			return Exchange{}, ctx.Err()
		}
	}
}
