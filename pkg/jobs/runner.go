package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"exam_hub_backend/pkg/monitoring"

	"go.uber.org/zap"
)

var (
	ErrQueueFull     = errors.New("job queue is full")
	ErrRunnerStopped = errors.New("job runner is stopped")
)

// Job 一个后台任务。提交后即与触发它的请求脱钩，调用方不等待结果。
// MaxRetries 是首次失败后的重试次数，退避时间为 BackoffBase * 2^attempt。
type Job struct {
	Name        string
	MaxRetries  int
	BackoffBase time.Duration
	Run         func(ctx context.Context) error
}

// Runner 进程内任务队列 + 固定 worker 池。任务一旦开始执行就不可取消，
// Stop 只是不再接收新任务并等待在途任务结束。
type Runner struct {
	queue   chan Job
	log     *zap.Logger
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

func NewRunner(workers, queueSize int, log *zap.Logger) *Runner {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	r := &Runner{
		queue: make(chan Job, queueSize),
		log:   log,
	}

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}

	return r
}

// Submit 非阻塞入队。队列满或已停止时返回错误，由调用方决定是否降级。
// 入队动作必须持锁完成：Stop 在同一把锁下关闭队列，否则检查完 stopped
// 到真正发送之间队列可能已被关闭。
func (r *Runner) Submit(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return ErrRunnerStopped
	}

	select {
	case r.queue <- job:
		monitoring.JobQueueDepth.Set(float64(len(r.queue)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop 关闭队列并等待所有 worker 退出。队列中尚未开始的任务仍会被执行。
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Runner) worker() {
	defer r.wg.Done()

	for job := range r.queue {
		monitoring.JobQueueDepth.Set(float64(len(r.queue)))
		r.execute(job)
	}
}

func (r *Runner) execute(job Job) {
	start := time.Now()

	backoff := job.BackoffBase
	if backoff <= 0 {
		backoff = time.Second
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = r.runOnce(job)
		if err == nil {
			break
		}
		if attempt >= job.MaxRetries {
			break
		}

		wait := backoff << attempt // backoff * 2^attempt
		r.log.Warn("background job failed, retrying",
			zap.String("job", job.Name),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err))
		time.Sleep(wait)
	}

	monitoring.JobDuration.WithLabelValues(job.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		monitoring.JobCounter.WithLabelValues(job.Name, "error").Inc()
		r.log.Error("background job exhausted retries",
			zap.String("job", job.Name),
			zap.Error(err))
		return
	}
	monitoring.JobCounter.WithLabelValues(job.Name, "ok").Inc()
}

// runOnce 单次执行，panic 转为错误，避免一个任务拖垮整个 worker 池
func (r *Runner) runOnce(job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if e, ok := rec.(error); ok {
				err = e
			} else {
				err = errors.New("job panicked")
			}
			r.log.Error("background job panic",
				zap.String("job", job.Name),
				zap.Any("panic", rec))
		}
	}()

	return job.Run(context.Background())
}
