package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/robfig/cron/v3"
)

// SyncCmd runs a single pass.
type SyncCmd struct{}

func (c *SyncCmd) Run(a *app) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case s := <-sig:
			a.logger.Warn("interrupted", "signal", s.String(), "lock_held", a.guard.Held())
			// Release is a no-op unless this process acquired the marker.
			if err := a.guard.Release(); err != nil {
				a.logger.Error("release lock failed", "error", err)
			}
			a.closer.Close()
			os.Exit(1)
		case <-done:
		}
	}()

	results, err := a.runPass()
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		a.logger.Warn("some accounts failed", "count", failed)
	}
	return nil
}

// WatchCmd runs passes on the configured schedule until interrupted.
type WatchCmd struct {
	Schedule string `help:"Cron schedule, overrides the config value"`
}

func (c *WatchCmd) Run(a *app) error {
	schedule := a.cfg.Schedule
	if c.Schedule != "" {
		schedule = c.Schedule
	}

	sched, job, err := a.newScheduler(schedule)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("watching", "schedule", schedule, "accounts", len(a.cfg.Accounts))
	job.Run()
	sched.Start()

	<-ctx.Done()
	a.logger.Info("shutting down, waiting for running pass to finish...")
	<-sched.Stop().Done()
	return nil
}

// newScheduler builds a cron scheduler running a guarded pass on schedule.
// The returned job is the same chained job, for running a pass right away.
func (a *app) newScheduler(schedule string) (*cron.Cron, cron.Job, error) {
	cronLog := cron.PrintfLogger(slog.NewLogLogger(a.logger.Handler(), slog.LevelDebug))
	job := cron.NewChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)).Then(cron.FuncJob(func() {
		if _, err := a.runPass(); err != nil {
			a.logger.Error("sync pass failed", "error", err)
		}
	}))

	sched := cron.New(cron.WithLogger(cronLog))
	if _, err := sched.AddJob(schedule, job); err != nil {
		return nil, nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	return sched, job, nil
}

// StatusCmd prints what is stored locally for each account.
type StatusCmd struct{}

func (c *StatusCmd) Run(a *app) error {
	return a.printStatus(os.Stdout)
}

func (a *app) printStatus(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tLAST UID\tUNSEEN\tSEEN\tLOWEST\tHIGHEST")
	for _, acct := range a.cfg.Accounts {
		st, err := a.engine.Status(acct)
		if err != nil {
			return fmt.Errorf("status %s: %w", acct.Key(), err)
		}
		last := "-"
		if st.Synced {
			last = fmt.Sprint(st.LastSynced)
		}
		lo, hi := "-", "-"
		if st.Unseen+st.Seen > 0 {
			lo, hi = fmt.Sprint(st.LowestUID), fmt.Sprint(st.HighestUID)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n", st.Account, last, st.Unseen, st.Seen, lo, hi)
	}
	return w.Flush()
}
