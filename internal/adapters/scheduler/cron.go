// Package scheduler runs the periodic risk refresh and survey reminder jobs.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Logger is the structured logger jobs report through.
type Logger interface {
	Info(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}

// Job is one scheduled unit of work.
type Job func(context.Context) error

// Cron wraps a seconds-resolution cron scheduler bound to a context.
type Cron struct {
	cron   *cron.Cron
	logger Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
	jobs    map[string]Job
}

// New constructs a scheduler evaluating specs in loc. Overlapping runs of the
// same job are skipped and panics are recovered.
func New(loc *time.Location, logger Logger) *Cron {
	if loc == nil {
		loc = time.Local
	}
	adapter := cronLogger{logger: logger}
	return &Cron{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger:  logger,
		entries: map[string]cron.EntryID{},
		jobs:    map[string]Job{},
	}
}

// Add registers a named job. Spec uses six fields (with seconds) or a
// descriptor such as "@every 15m".
func (c *Cron) Add(name, spec string, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" || job == nil {
		return fmt.Errorf("scheduler: job name and func are required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[name]; ok {
		return fmt.Errorf("scheduler: job %q already registered", name)
	}
	id, err := c.cron.AddFunc(spec, func() { c.run(name) })
	if err != nil {
		return fmt.Errorf("scheduler: schedule %q (%s): %w", name, spec, err)
	}
	c.entries[name] = id
	c.jobs[name] = job
	return nil
}

// Start begins running jobs until ctx is cancelled or Stop is called.
func (c *Cron) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()
	c.cron.Start()
	c.logger.Info("scheduler started", "jobs", len(c.entries))
}

// Stop halts scheduling, cancels running jobs, and waits for them to return.
func (c *Cron) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	<-c.cron.Stop().Done()
	c.logger.Info("scheduler stopped")
}

// RunNow runs a registered job synchronously.
func (c *Cron) RunNow(ctx context.Context, name string) error {
	c.mu.Lock()
	job, ok := c.jobs[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return job(ctx)
}

// Next returns the next activation time of a job.
func (c *Cron) Next(name string) (time.Time, bool) {
	c.mu.Lock()
	id, ok := c.entries[name]
	c.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return c.cron.Entry(id).Next, true
}

func (c *Cron) run(name string) {
	c.mu.Lock()
	ctx, job := c.ctx, c.jobs[name]
	c.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	if err := job(ctx); err != nil {
		c.logger.Error("scheduled job failed", "job", name, "err", err)
		return
	}
	c.logger.Info("scheduled job finished", "job", name, "elapsed", time.Since(started).Round(time.Millisecond))
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	logger Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "err", err)...)
}
