package queue

import (
	"bytes"
	"context"
	"sync"
	"time"

	qport "crime-scene-platform/internal/domain/ports/queue"
)

var _ qport.Broker = (*MemoryBroker)(nil)

// MemoryBroker is the in-process Broker used by tests and by dev mode when
// no Redis is configured. Semantics mirror the Redis list broker: FIFO per
// topic, value-matched removal, atomic pop-to-processing.
type MemoryBroker struct {
	mu     sync.Mutex
	lists  map[string][][]byte
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{lists: make(map[string][][]byte)}
}

func (b *MemoryBroker) Push(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := append([]byte(nil), payload...)
	b.lists[topic] = append(b.lists[topic], cp)
	return nil
}

func (b *MemoryBroker) PopToProcessing(ctx context.Context, topic, processing string, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		b.mu.Lock()
		if l := b.lists[topic]; len(l) > 0 {
			head := l[0]
			b.lists[topic] = l[1:]
			b.lists[processing] = append(b.lists[processing], head)
			b.mu.Unlock()
			return head, nil
		}
		b.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (b *MemoryBroker) Remove(ctx context.Context, topic string, payload []byte) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(topic, payload), nil
}

func (b *MemoryBroker) Swap(ctx context.Context, topic string, prev, next []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(topic, prev)
	cp := append([]byte(nil), next...)
	b.lists[topic] = append(b.lists[topic], cp)
	return nil
}

func (b *MemoryBroker) MoveBack(ctx context.Context, from, to string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.removeLocked(from, payload) == 0 {
		return nil // already reclaimed elsewhere
	}
	cp := append([]byte(nil), payload...)
	b.lists[to] = append(b.lists[to], cp)
	return nil
}

func (b *MemoryBroker) Len(ctx context.Context, topic string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.lists[topic])), nil
}

func (b *MemoryBroker) List(ctx context.Context, topic string) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, 0, len(b.lists[topic]))
	for _, p := range b.lists[topic] {
		out = append(out, append([]byte(nil), p...))
	}
	return out, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.lists = make(map[string][][]byte)
	return nil
}

func (b *MemoryBroker) removeLocked(topic string, payload []byte) int64 {
	l := b.lists[topic]
	for i, p := range l {
		if bytes.Equal(p, payload) {
			b.lists[topic] = append(l[:i:i], l[i+1:]...)
			return 1
		}
	}
	return 0
}
