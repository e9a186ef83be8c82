package relay

import (
	"context"
	"sync"
)

// Broker fans messages out to every subscriber of a session and hands out
// per-session revisions.
//
// Implemented by MemoryBroker (single process) and RedisBroker (shared
// between relay instances).
type Broker interface {
	Publish(ctx context.Context, sessionID string, data []byte) error
	Subscribe(ctx context.Context, sessionID string) (Feed, error)
	NextRevision(ctx context.Context, sessionID string) (int64, error)
	Revision(ctx context.Context, sessionID string) (int64, error)
	Close() error
}

// Feed is one subscription. C is closed after Close, and also when the
// subscriber falls a full buffer behind: a feed never skips a message.
type Feed interface {
	C() <-chan []byte
	Close() error
}

// feedBuffer is the channel capacity of a subscription.
const feedBuffer = 256

// MemoryBroker is an in-process Broker.
type MemoryBroker struct {
	mu        sync.Mutex
	feeds     map[string]map[*memoryFeed]struct{}
	revisions map[string]int64
}

// NewMemoryBroker creates an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		feeds:     make(map[string]map[*memoryFeed]struct{}),
		revisions: make(map[string]int64),
	}
}

type memoryFeed struct {
	b       *MemoryBroker
	session string
	ch      chan []byte
	once    sync.Once
}

func (f *memoryFeed) C() <-chan []byte {
	return f.ch
}

func (f *memoryFeed) Close() error {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	f.closeLocked()
	return nil
}

// closeLocked detaches the feed. The caller holds the broker lock.
func (f *memoryFeed) closeLocked() {
	f.once.Do(func() {
		delete(f.b.feeds[f.session], f)
		if len(f.b.feeds[f.session]) == 0 {
			delete(f.b.feeds, f.session)
		}
		close(f.ch)
	})
}

// Publish delivers data to every feed of the session. A feed whose buffer
// is full is closed rather than skipped, so its client reconnects and
// resynchronizes.
func (b *MemoryBroker) Publish(_ context.Context, sessionID string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for f := range b.feeds[sessionID] {
		select {
		case f.ch <- data:
		default:
			f.closeLocked()
		}
	}
	return nil
}

// Subscribe opens a feed on the session.
func (b *MemoryBroker) Subscribe(_ context.Context, sessionID string) (Feed, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := &memoryFeed{b: b, session: sessionID, ch: make(chan []byte, feedBuffer)}
	if b.feeds[sessionID] == nil {
		b.feeds[sessionID] = make(map[*memoryFeed]struct{})
	}
	b.feeds[sessionID][f] = struct{}{}
	return f, nil
}

// NextRevision increments and returns the session revision.
func (b *MemoryBroker) NextRevision(_ context.Context, sessionID string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revisions[sessionID]++
	return b.revisions[sessionID], nil
}

// Revision returns the session revision without incrementing.
func (b *MemoryBroker) Revision(_ context.Context, sessionID string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revisions[sessionID], nil
}

// Subscribers returns the number of open feeds on a session.
func (b *MemoryBroker) Subscribers(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.feeds[sessionID])
}

// Close is a no-op; open feeds stay usable.
func (b *MemoryBroker) Close() error {
	return nil
}
