package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/jimezsa/jobwatch/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

type ScheduleCmd struct {
	RunNow      bool   `help:"Refresh all sources once at startup."`
	MetricsAddr string `help:"Serve Prometheus metrics on this address (overrides metrics.addr)."`
}

func (c *ScheduleCmd) Run(ctx *Context) error {
	cfg := ctx.Config
	if !cfg.Schedule.Enabled {
		ctx.UI.Warnf("Internal schedule is disabled (schedule.enabled=false)")
		return nil
	}

	addr := c.MetricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}

	rt, err := ctx.runtime(RuntimeOptions{Store: true, Metrics: addr != ""})
	if err != nil {
		return err
	}
	defer rt.Close()

	sched, err := scheduler.New(rt.Engine, scheduler.Options{
		Hour:     cfg.Schedule.Hour,
		Timezone: cfg.Schedule.Timezone,
		RunNow:   c.RunNow,
	}, ctx.Logger)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx.ctx(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return sched.Run(groupCtx)
	})
	if addr != "" && rt.Metrics != nil {
		group.Go(func() error {
			return rt.Metrics.Serve(groupCtx, addr, ctx.Logger)
		})
	}
	return group.Wait()
}
