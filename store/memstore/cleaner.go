package memstore

import (
	"sync"
	"time"
)

// DefaultCleanerInterval 默认清理间隔
const DefaultCleanerInterval = time.Minute

// Cleaner 定期删除已过期的 key
// 过期 key 只有被访问时才会惰性删除，长时间运行时需要它回收无人再访问的锁
type Cleaner struct {
	store    *MemStore
	interval time.Duration
	onEvict  func(key string)

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

type CleanerOption func(*Cleaner)

// WithCleanInterval 设置清理间隔
func WithCleanInterval(interval time.Duration) CleanerOption {
	return func(c *Cleaner) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithEvictionCallback 设置淘汰回调，在锁外调用
func WithEvictionCallback(callback func(key string)) CleanerOption {
	return func(c *Cleaner) {
		c.onEvict = callback
	}
}

// NewCleaner 创建清理器
func NewCleaner(m *MemStore, options ...CleanerOption) *Cleaner {
	c := &Cleaner{
		store:    m,
		interval: DefaultCleanerInterval,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Start 启动清理器，重复调用无效
func (c *Cleaner) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}
	c.running = true
	c.stopChan = make(chan struct{})

	c.wg.Add(1)
	go c.loop(c.stopChan)
}

// Stop 停止清理器并等待后台协程退出
func (c *Cleaner) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopChan)
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Cleaner) loop(stop <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep 立即清理一次，返回删除的 key 数量
func (c *Cleaner) Sweep() int {
	m := c.store
	m.mu.Lock()
	now := m.now()
	var expired []string
	for key, e := range m.data {
		if e.expired(now) {
			delete(m.data, key)
			expired = append(expired, key)
		}
	}
	m.mu.Unlock()

	if c.onEvict != nil {
		for _, key := range expired {
			c.onEvict(key)
		}
	}
	return len(expired)
}
