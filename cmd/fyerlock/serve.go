package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyerfyer/fyer-lock/api"
	"github.com/fyerfyer/fyer-lock/metrics"
	"github.com/spf13/cobra"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve Prometheus metrics and the lock admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			ms, as, err := startServers(a)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "metrics on %s, api on %s\n", ms.Addr(), as.Address())
			<-ctx.Done()
			return errors.Join(as.Stop(), ms.Stop())
		},
	}
}

// startServers 启动指标与管理接口，两者共用存储健康检查
func startServers(a *app) (*metrics.Server, *api.APIServer, error) {
	health := storeHealth(a)

	ms := metrics.NewServer(metrics.NewPrometheusExporter(a.collector), &a.cfg.Metrics,
		metrics.WithLogger(a.logger.Named("metrics")),
		metrics.WithHealthCheck(health))
	if err := ms.Start(); err != nil {
		return nil, nil, fmt.Errorf("start metrics server: %w", err)
	}

	as := api.NewAPIServer(a.client, health,
		api.WithBindAddress(a.cfg.API.BindAddress),
		api.WithBasePath(a.cfg.API.BasePath),
		api.WithTimeouts(a.cfg.API.ReadTimeout, a.cfg.API.WriteTimeout, a.cfg.API.IdleTimeout),
		api.WithLogger(a.logger.Named("api")))
	if err := as.Start(); err != nil {
		_ = ms.Stop()
		return nil, nil, fmt.Errorf("start api server: %w", err)
	}
	return ms, as, nil
}

// storeHealth 查询一个探测 key 的 TTL，存储可达即健康
func storeHealth(a *app) func(ctx context.Context) error {
	key := a.cfg.Lock.Namespace + ":health"
	return func(ctx context.Context) error {
		_, err := a.store.TTL(ctx, key)
		return err
	}
}
