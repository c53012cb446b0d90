package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const releaseTimeout = 5 * time.Second

// signalContext 收到中断信号时取消
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newHoldCmd(flags *globalFlags) *cobra.Command {
	var holdFor time.Duration
	cmd := &cobra.Command{
		Use:   "hold [resource]",
		Short: "Block until the lock is acquired, hold it, then release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runHold(ctx, cmd, a, args[0], holdFor)
		},
	}
	cmd.Flags().DurationVar(&holdFor, "for", 10*time.Second, "how long to hold the lock")
	return cmd
}

func runHold(ctx context.Context, cmd *cobra.Command, a *app, resource string, holdFor time.Duration) error {
	l, err := a.client.NewLock(resource)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := l.Lock(ctx); err != nil {
		return fmt.Errorf("acquire %s: %w", resource, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "acquired key=%s token=%s wait=%s\n",
		l.Key(), l.Token(), time.Since(start).Round(time.Millisecond))

	select {
	case <-time.After(holdFor):
	case <-ctx.Done():
	}

	// 中断后仍然要释放
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := l.Unlock(rctx); err != nil {
		return fmt.Errorf("release %s: %w", resource, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "released key=%s\n", l.Key())
	return nil
}
