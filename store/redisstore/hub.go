package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyerfyer/fyer-lock/internal/ferr"
	"github.com/fyerfyer/fyer-lock/store"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// openTimeout 建立订阅连接并等待确认的上限
const openTimeout = 5 * time.Second

// topic 一个频道对应一个 PubSub 连接，本进程内的所有订阅者共享
type topic struct {
	pubsub    *redis.PubSub
	listeners map[uint64]store.MessageHandler
	done      chan struct{}
}

// hub 管理订阅连接
// 同一频道并发订阅时只建立一次连接，最后一个订阅者退出时关闭连接
type hub struct {
	client redis.UniversalClient

	mu     sync.Mutex
	topics map[string]*topic
	nextID uint64

	sf singleflight.Group
}

func newHub(client redis.UniversalClient) *hub {
	return &hub{
		client: client,
		topics: make(map[string]*topic),
	}
}

func (h *hub) subscribe(ctx context.Context, channel string, handler store.MessageHandler) (store.Subscription, error) {
	for {
		h.mu.Lock()
		if t, ok := h.topics[channel]; ok {
			h.nextID++
			id := h.nextID
			t.listeners[id] = handler
			h.mu.Unlock()
			return &subscription{hub: h, channel: channel, id: id}, nil
		}
		h.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// 连接建立期间不持有 mu
		// 多个调用方共享一次 open，不能使用其中任何一个调用方的 ctx
		ch := h.sf.DoChan(channel, func() (any, error) {
			octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), openTimeout)
			defer cancel()
			return nil, h.open(octx, channel)
		})
		select {
		case <-ctx.Done():
			go func() {
				if res := <-ch; res.Err == nil {
					h.dropIdle(channel)
				}
			}()
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err == nil {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(res.Err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: subscribe %s: %w", ferr.ErrStoreUnavailable, channel, res.Err)
			}
			return nil, ferr.Unavailable(res.Err)
		}
	}
}

func (h *hub) open(ctx context.Context, channel string) error {
	h.mu.Lock()
	_, ok := h.topics[channel]
	h.mu.Unlock()
	if ok {
		return nil
	}

	ps := h.client.Subscribe(ctx, channel)
	// 等待 SUBSCRIBE 确认，之后的 PUBLISH 一定能收到
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return err
	}

	t := &topic{
		pubsub:    ps,
		listeners: make(map[uint64]store.MessageHandler),
		done:      make(chan struct{}),
	}
	h.mu.Lock()
	h.topics[channel] = t
	h.mu.Unlock()

	go h.dispatch(t)
	return nil
}

func (h *hub) dispatch(t *topic) {
	defer close(t.done)
	for msg := range t.pubsub.Channel() {
		h.mu.Lock()
		handlers := make([]store.MessageHandler, 0, len(t.listeners))
		for _, fn := range t.listeners {
			handlers = append(handlers, fn)
		}
		h.mu.Unlock()

		for _, fn := range handlers {
			fn(msg.Payload)
		}
	}
}

func (h *hub) unsubscribe(ctx context.Context, channel string, id uint64) error {
	h.mu.Lock()
	t, ok := h.topics[channel]
	if !ok {
		h.mu.Unlock()
		return nil
	}
	delete(t.listeners, id)
	if len(t.listeners) > 0 {
		h.mu.Unlock()
		return nil
	}
	delete(h.topics, channel)
	h.mu.Unlock()

	return h.shutdown(ctx, t)
}

// dropIdle 关闭没有订阅者的连接，发起方已经放弃时由它回收
func (h *hub) dropIdle(channel string) {
	h.mu.Lock()
	t, ok := h.topics[channel]
	if !ok || len(t.listeners) > 0 {
		h.mu.Unlock()
		return
	}
	delete(h.topics, channel)
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	_ = h.shutdown(ctx, t)
}

func (h *hub) shutdown(ctx context.Context, t *topic) error {
	err := t.pubsub.Close()
	select {
	case <-t.done:
	case <-ctx.Done():
	}
	return err
}

func (h *hub) close() error {
	h.mu.Lock()
	topics := h.topics
	h.topics = make(map[string]*topic)
	h.mu.Unlock()

	var firstErr error
	for _, t := range topics {
		if err := h.shutdown(context.Background(), t); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// subscription 实现 store.Subscription
type subscription struct {
	hub     *hub
	channel string
	id      uint64
	once    sync.Once
}

func (s *subscription) Unsubscribe(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		err = s.hub.unsubscribe(ctx, s.channel, s.id)
	})
	return err
}
