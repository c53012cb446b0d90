package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fyerfyer/fyer-lock/distributelock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// raceResult 竞争统计
type raceResult struct {
	Acquisitions int64
	// Overlaps 同时处于临界区的次数，正确时为 0
	Overlaps int64
	Elapsed  time.Duration
}

func newRaceCmd(flags *globalFlags) *cobra.Command {
	var (
		workers int
		rounds  int
		work    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "race [resource]",
		Short: "Run goroutines that contend for one lock and check mutual exclusion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			res, err := runRace(ctx, a.client, args[0], workers, rounds, work)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "acquisitions=%d overlaps=%d elapsed=%s\n",
				res.Acquisitions, res.Overlaps, res.Elapsed.Round(time.Millisecond))
			if res.Overlaps > 0 {
				return fmt.Errorf("mutual exclusion violated %d times", res.Overlaps)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 4, "number of contending goroutines")
	cmd.Flags().IntVar(&rounds, "rounds", 10, "acquisitions per goroutine")
	cmd.Flags().DurationVar(&work, "work", time.Millisecond, "time spent inside the critical section")
	return cmd
}

func runRace(ctx context.Context, client *distributelock.Client, resource string, workers, rounds int, work time.Duration) (raceResult, error) {
	var (
		inside   atomic.Int32
		acquired atomic.Int64
		overlaps atomic.Int64
	)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for j := 0; j < rounds; j++ {
				l, err := client.NewLock(resource)
				if err != nil {
					return err
				}
				if err := l.Lock(gctx); err != nil {
					return err
				}
				if inside.Add(1) > 1 {
					overlaps.Add(1)
				}
				acquired.Add(1)
				time.Sleep(work)
				inside.Add(-1)
				if err := l.Unlock(gctx); err != nil {
					return err
				}
			}
			return nil
		})
	}
	err := g.Wait()
	return raceResult{
		Acquisitions: acquired.Load(),
		Overlaps:     overlaps.Load(),
		Elapsed:      time.Since(start),
	}, err
}
