package main

import (
	"errors"
	"fmt"

	"github.com/fyerfyer/fyer-lock/config"
	"github.com/fyerfyer/fyer-lock/metrics"
	"github.com/fyerfyer/fyer-lock/store"
	"github.com/fyerfyer/fyer-lock/store/breakerstore"
	"github.com/fyerfyer/fyer-lock/store/etcdstore"
	"github.com/fyerfyer/fyer-lock/store/memstore"
	"github.com/fyerfyer/fyer-lock/store/redisstore"
	"github.com/fyerfyer/fyer-lock/store/shardstore"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

func noopClose() error { return nil }

// openStore 创建存储，外层依次包装熔断与指标
func openStore(cfg config.StoreConfig, logger *zap.Logger, collector metrics.Collector) (store.Store, func() error, error) {
	var (
		s       store.Store
		closeFn = noopClose
	)

	switch cfg.Driver {
	case config.DriverMemory:
		m := memstore.New()
		cleaner := memstore.NewCleaner(m)
		cleaner.Start()
		s = m
		closeFn = func() error {
			cleaner.Stop()
			return nil
		}
	case config.DriverRedis:
		var err error
		s, closeFn, err = openRedis(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
	case config.DriverEtcd:
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: cfg.Etcd.DialTimeout,
			Logger:      logger.Named("etcd"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect etcd: %w", err)
		}
		es, err := etcdstore.New(client)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		s = es
		closeFn = client.Close
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	if cfg.Breaker.Enabled {
		bs, err := breakerstore.New(s, breakerstore.Settings{
			Name:                cfg.Driver,
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
			OpenTimeout:         cfg.Breaker.OpenTimeout,
			HalfOpenRequests:    cfg.Breaker.HalfOpenRequests,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("store breaker state changed",
					zap.String("store", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		if err != nil {
			_ = closeFn()
			return nil, nil, err
		}
		s = bs
	}

	if collector != nil {
		s = metrics.NewMonitoredStore(s, collector)
	}
	return s, closeFn, nil
}

// openRedis 配置了多个实例时按一致性哈希分片
func openRedis(cfg config.RedisConfig) (store.Store, func() error, error) {
	addrs := cfg.Shards
	if len(addrs) == 0 {
		addrs = []string{cfg.Addr}
	}

	var closers []func() error
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}

	shards := make(map[string]store.Store, len(addrs))
	for _, addr := range addrs {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		})
		rs, err := redisstore.New(client)
		if err != nil {
			_ = client.Close()
			_ = closeAll()
			return nil, nil, err
		}
		closers = append(closers, rs.Close, client.Close)
		shards[addr] = rs
	}

	if len(shards) == 1 {
		return shards[addrs[0]], closeAll, nil
	}
	ss, err := shardstore.New(shards, shardstore.Options{})
	if err != nil {
		_ = closeAll()
		return nil, nil, err
	}
	return ss, closeAll, nil
}
