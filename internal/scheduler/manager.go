// Package scheduler runs the server's periodic background jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Job is one periodic unit of work.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// Manager wraps a gocron scheduler. Jobs never overlap with themselves; a run
// still in progress when the next tick fires pushes that tick back.
type Manager struct {
	scheduler gocron.Scheduler
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewManager(log *zap.Logger, opts ...gocron.SchedulerOption) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{scheduler: s, log: log, ctx: ctx, cancel: cancel}, nil
}

// Register adds jobs. Jobs with a non-positive interval are skipped.
func (m *Manager) Register(jobs ...Job) error {
	for _, job := range jobs {
		if job.Every <= 0 {
			m.log.Debug("job disabled", zap.String("job", job.Name))
			continue
		}
		job := job
		_, err := m.scheduler.NewJob(
			gocron.DurationJob(job.Every),
			gocron.NewTask(func() { m.execute(job) }),
			gocron.WithName(job.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			return fmt.Errorf("register job %s: %w", job.Name, err)
		}
	}
	return nil
}

func (m *Manager) execute(job Job) {
	start := time.Now()
	if err := job.Run(m.ctx); err != nil {
		m.log.Warn("job failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	m.log.Debug("job finished", zap.String("job", job.Name), zap.Duration("took", time.Since(start)))
}

// Jobs lists the names of the registered jobs.
func (m *Manager) Jobs() []string {
	var names []string
	for _, j := range m.scheduler.Jobs() {
		names = append(names, j.Name())
	}
	return names
}

func (m *Manager) Start() {
	m.scheduler.Start()
	m.log.Info("scheduler started", zap.Int("jobs", len(m.scheduler.Jobs())))
}

// Stop cancels running jobs and waits for them to return.
func (m *Manager) Stop() {
	m.cancel()
	if err := m.scheduler.Shutdown(); err != nil {
		m.log.Warn("scheduler shutdown failed", zap.Error(err))
	}
	m.log.Info("scheduler stopped")
}
