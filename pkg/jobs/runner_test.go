package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunnerExecutesSubmittedJobs(t *testing.T) {
	r := NewRunner(2, 16, zap.NewNop())

	var done int32
	for i := 0; i < 10; i++ {
		err := r.Submit(Job{
			Name: "count",
			Run: func(ctx context.Context) error {
				atomic.AddInt32(&done, 1)
				return nil
			},
		})
		require.NoError(t, err)
	}

	// Stop 等待队列排干
	r.Stop()
	assert.Equal(t, int32(10), atomic.LoadInt32(&done))
}

func TestRunnerRetriesWithBackoff(t *testing.T) {
	r := NewRunner(1, 16, zap.NewNop())

	var attempts int32
	err := r.Submit(Job{
		Name:        "flaky",
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		Run: func(ctx context.Context) error {
			if atomic.AddInt32(&attempts, 1) < 3 {
				return errors.New("transient")
			}
			return nil
		},
	})
	require.NoError(t, err)

	r.Stop()
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts), "第三次尝试成功后不再重试")
}

func TestRunnerGivesUpAfterMaxRetries(t *testing.T) {
	r := NewRunner(1, 16, zap.NewNop())

	var attempts int32
	err := r.Submit(Job{
		Name:        "doomed",
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&attempts, 1)
			return errors.New("permanent")
		},
	})
	require.NoError(t, err)

	r.Stop()
	// 首次 + 2 次重试
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestRunnerRecoversFromPanic(t *testing.T) {
	r := NewRunner(1, 16, zap.NewNop())

	require.NoError(t, r.Submit(Job{
		Name: "panicky",
		Run: func(ctx context.Context) error {
			panic("boom")
		},
	}))

	// panic 不拖垮 worker，后续任务照常执行
	var ran int32
	require.NoError(t, r.Submit(Job{
		Name: "survivor",
		Run: func(ctx context.Context) error {
			atomic.StoreInt32(&ran, 1)
			return nil
		},
	}))

	r.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestRunnerRejectsWhenQueueFull(t *testing.T) {
	r := NewRunner(1, 1, zap.NewNop())

	block := make(chan struct{})
	started := make(chan struct{})

	// 占住唯一的 worker
	require.NoError(t, r.Submit(Job{
		Name: "blocker",
		Run: func(ctx context.Context) error {
			close(started)
			<-block
			return nil
		},
	}))
	<-started

	// 填满长度为 1 的队列
	require.NoError(t, r.Submit(Job{Name: "queued", Run: func(ctx context.Context) error { return nil }}))

	// 队列已满：非阻塞拒绝
	err := r.Submit(Job{Name: "overflow", Run: func(ctx context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
	r.Stop()
}

func TestRunnerRejectsAfterStop(t *testing.T) {
	r := NewRunner(1, 16, zap.NewNop())
	r.Stop()

	err := r.Submit(Job{Name: "late", Run: func(ctx context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrRunnerStopped)
}

func TestRunnerSubmitDuringStopDoesNotPanic(t *testing.T) {
	// Submit 与 Stop 并发竞争时不允许向已关闭的队列发送，
	// 只能得到入队成功或明确的拒绝错误
	for i := 0; i < 200; i++ {
		r := NewRunner(1, 4, zap.NewNop())

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					err := r.Submit(Job{
						Name: "noop",
						Run:  func(ctx context.Context) error { return nil },
					})
					if err != nil {
						assert.True(t, errors.Is(err, ErrQueueFull) || errors.Is(err, ErrRunnerStopped))
					}
				}
			}()
		}

		r.Stop()
		wg.Wait()
	}
}
