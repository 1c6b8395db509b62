package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingPoller struct{ n atomic.Int32 }

func (p *countingPoller) Poll(context.Context) (int, error) {
	p.n.Add(1)
	return 0, nil
}

type stubDispatcher struct{ enabled bool }

func (d stubDispatcher) Enabled() bool { return d.enabled }
func (d stubDispatcher) DispatchAll(ctx context.Context) {}

type failingSweeper struct{ calls atomic.Int32 }

func (s *failingSweeper) SweepOrphanComments(context.Context) (int64, error) {
	s.calls.Add(1)
	return 0, errors.New("disk on fire")
}

func TestManagerRunsJobs(t *testing.T) {
	m, err := NewManager(zap.NewNop())
	require.NoError(t, err)

	poller := &countingPoller{}
	sweeper := &failingSweeper{}
	require.NoError(t, m.Register(
		FeedPollJob(poller, 10*time.Millisecond),
		OrphanSweepJob(sweeper, 10*time.Millisecond, zap.NewNop()),
		WebhookJob(stubDispatcher{}, time.Second),
		TokenPruneJob(nil, 0),
	))
	assert.ElementsMatch(t, []string{"feed_poll", "orphan_comment_sweep"}, m.Jobs())

	m.Start()
	assert.Eventually(t, func() bool { return poller.n.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	m.Stop()
}

func TestWebhookJobEnabledOnlyWithHooks(t *testing.T) {
	assert.Zero(t, WebhookJob(stubDispatcher{}, time.Second).Every)
	assert.Equal(t, time.Second, WebhookJob(stubDispatcher{enabled: true}, time.Second).Every)
}
