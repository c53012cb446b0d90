package main

import (
	"errors"
	"fmt"

	"github.com/fyerfyer/fyer-lock/config"
	"github.com/fyerfyer/fyer-lock/distributelock"
	"github.com/fyerfyer/fyer-lock/internal/flog"
	"github.com/fyerfyer/fyer-lock/metrics"
	"github.com/fyerfyer/fyer-lock/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// globalFlags 所有子命令共享的参数，非空时覆盖配置文件
type globalFlags struct {
	configPath    string
	storeDriver   string
	redisAddr     string
	etcdEndpoints []string
	namespace     string
}

// app 一次命令执行所需的全部依赖
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     store.Store
	collector *metrics.PrometheusCollector
	client    *distributelock.Client
	closers   []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:          "fyerlock",
		Short:        "distributed lock toolbox",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (yaml or json)")
	pf.StringVar(&flags.storeDriver, "store", "", "store driver: memory, redis or etcd")
	pf.StringVar(&flags.redisAddr, "redis-addr", "", "redis address")
	pf.StringSliceVar(&flags.etcdEndpoints, "etcd-endpoints", nil, "comma separated etcd endpoints")
	pf.StringVar(&flags.namespace, "namespace", "", "lock key namespace")

	root.AddCommand(
		newHoldCmd(flags),
		newTryCmd(flags),
		newInspectCmd(flags),
		newRaceCmd(flags),
		newCronCmd(flags),
		newServeCmd(flags),
	)
	return root
}

// loadConfig 读取配置文件并应用命令行覆盖
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		var err error
		if cfg, err = config.Load(flags.configPath); err != nil {
			return nil, err
		}
	}
	if flags.storeDriver != "" {
		cfg.Store.Driver = flags.storeDriver
	}
	if flags.redisAddr != "" {
		cfg.Store.Redis.Addr = flags.redisAddr
	}
	if len(flags.etcdEndpoints) > 0 {
		cfg.Store.Etcd.Endpoints = flags.etcdEndpoints
	}
	if flags.namespace != "" {
		cfg.Lock.Namespace = flags.namespace
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup 按配置组装 logger、存储与锁客户端
func setup(flags *globalFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	logger, err := flog.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		collector: metrics.NewPrometheusCollector(&cfg.Metrics),
	}
	s, closeStore, err := openStore(cfg.Store, logger, a.collector)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	a.store = s
	a.closers = append(a.closers, closeStore)

	opts := append(cfg.Lock.Options(),
		distributelock.WithLogger(logger.Named("lock")),
		distributelock.WithRecorder(a.collector))
	a.client, err = distributelock.NewClient(s, opts...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create lock client: %w", err)
	}
	return a, nil
}
