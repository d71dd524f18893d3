package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"crime-scene-platform/internal/domain"
	qport "crime-scene-platform/internal/domain/ports/queue"
)

var _ qport.Broker = (*ListBroker)(nil)

// ListBroker keeps one Redis list per topic. Serve order is FIFO: LPUSH on
// enqueue, BRPOPLPUSH takes the oldest entry and lands it on the processing
// list in the same command, so no consumer crash can strand a payload in
// neither list.
type ListBroker struct {
	cli *redis.Client
}

func NewListBroker(c *Client) *ListBroker {
	return &ListBroker{cli: c.cli}
}

func (b *ListBroker) Push(ctx context.Context, topic string, payload []byte) error {
	if err := b.cli.LPush(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("%w: push %s: %v", domain.ErrBrokerUnavailable, topic, err)
	}
	return nil
}

func (b *ListBroker) PopToProcessing(ctx context.Context, topic, processing string, timeout time.Duration) ([]byte, error) {
	res, err := b.cli.BRPopLPush(ctx, topic, processing, timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // timeout, no work
		}
		return nil, fmt.Errorf("%w: pop %s: %v", domain.ErrBrokerUnavailable, topic, err)
	}
	return []byte(res), nil
}

func (b *ListBroker) Remove(ctx context.Context, topic string, payload []byte) (int64, error) {
	n, err := b.cli.LRem(ctx, topic, 1, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: lrem %s: %v", domain.ErrBrokerUnavailable, topic, err)
	}
	return n, nil
}

func (b *ListBroker) Swap(ctx context.Context, topic string, prev, next []byte) error {
	pipe := b.cli.TxPipeline()
	pipe.LRem(ctx, topic, 1, prev)
	pipe.LPush(ctx, topic, next)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: swap %s: %v", domain.ErrBrokerUnavailable, topic, err)
	}
	return nil
}

func (b *ListBroker) MoveBack(ctx context.Context, from, to string, payload []byte) error {
	// Pipeline keeps the remove and the push on one round trip; the payload
	// is never visible in both lists to a scanner because LRem runs first.
	pipe := b.cli.TxPipeline()
	pipe.LRem(ctx, from, 1, payload)
	pipe.LPush(ctx, to, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: move %s -> %s: %v", domain.ErrBrokerUnavailable, from, to, err)
	}
	return nil
}

func (b *ListBroker) Len(ctx context.Context, topic string) (int64, error) {
	n, err := b.cli.LLen(ctx, topic).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: llen %s: %v", domain.ErrBrokerUnavailable, topic, err)
	}
	return n, nil
}

func (b *ListBroker) List(ctx context.Context, topic string) ([][]byte, error) {
	vals, err := b.cli.LRange(ctx, topic, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: lrange %s: %v", domain.ErrBrokerUnavailable, topic, err)
	}
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		out = append(out, []byte(v))
	}
	return out, nil
}

func (b *ListBroker) Close() error { return b.cli.Close() }
