package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Poller is satisfied by feed.Hub.
type Poller interface {
	Poll(ctx context.Context) (int, error)
}

// Dispatcher is satisfied by feed.Dispatcher.
type Dispatcher interface {
	Enabled() bool
	DispatchAll(ctx context.Context)
}

// Sweeper removes comments left behind by deleted tasks.
type Sweeper interface {
	SweepOrphanComments(ctx context.Context) (int64, error)
}

// Pruner forgets revoked tokens that have expired anyway.
type Pruner interface {
	PruneRevoked(ctx context.Context) (int64, error)
}

func FeedPollJob(p Poller, every time.Duration) Job {
	return Job{Name: "feed_poll", Every: every, Run: func(ctx context.Context) error {
		_, err := p.Poll(ctx)
		return err
	}}
}

func WebhookJob(d Dispatcher, every time.Duration) Job {
	if !d.Enabled() {
		every = 0
	}
	return Job{Name: "webhook_dispatch", Every: every, Run: func(ctx context.Context) error {
		d.DispatchAll(ctx)
		return nil
	}}
}

func OrphanSweepJob(s Sweeper, every time.Duration, log *zap.Logger) Job {
	return Job{Name: "orphan_comment_sweep", Every: every, Run: func(ctx context.Context) error {
		n, err := s.SweepOrphanComments(ctx)
		if err == nil && n > 0 && log != nil {
			log.Info("orphan comments removed", zap.Int64("count", n))
		}
		return err
	}}
}

func TokenPruneJob(p Pruner, every time.Duration) Job {
	return Job{Name: "revoked_token_prune", Every: every, Run: func(ctx context.Context) error {
		_, err := p.PruneRevoked(ctx)
		return err
	}}
}
