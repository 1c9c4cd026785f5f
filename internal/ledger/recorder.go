package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"CardRoom/internal/utils"
)

type job struct {
	name     string
	attempts int
	fn       func(ctx context.Context, s Store) error
}

// Recorder 异步写库。牌桌循环只投递任务，失败只打 warn，不影响对局
type Recorder struct {
	store   Store
	jobs    chan job
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewRecorder(store Store, queue int) *Recorder {
	r := &Recorder{
		store:   store,
		jobs:    make(chan job, queue),
		timeout: 5 * time.Second,
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Recorder) Store() Store { return r.store }

// Go 只尝试一次
func (r *Recorder) Go(name string, fn func(ctx context.Context, s Store) error) {
	r.submit(job{name: name, attempts: 1, fn: fn})
}

// Retry 用于带 opKey 的幂等操作，失败重试
func (r *Recorder) Retry(name string, fn func(ctx context.Context, s Store) error) {
	r.submit(job{name: name, attempts: 3, fn: fn})
}

func (r *Recorder) submit(j job) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		// 关闭后直接同步执行
		r.exec(j)
		return
	}
	select {
	case r.jobs <- j:
		return
	default:
		utils.Log.Warn("recorder queue full", "job", j.name)
	}
	// 队列满时单独起协程，资金操作不能丢
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.exec(j)
	}()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for j := range r.jobs {
		r.exec(j)
	}
}

func (r *Recorder) exec(j job) {
	var err error
	for i := 0; i < j.attempts; i++ {
		if i > 0 {
			time.Sleep(time.Duration(i) * 100 * time.Millisecond)
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err = j.fn(ctx, r.store)
		cancel()
		if err == nil {
			return
		}
		if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrInsufficientFunds) {
			break
		}
	}
	utils.Log.Warn("ledger write failed", "job", j.name, "err", err)
}

// Close 等待队列里的任务写完
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.jobs)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
