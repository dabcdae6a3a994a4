package worker

import (
	"sync"
	"time"

	"course_checkout/internal/pkg/push"
	"course_checkout/pkg/metrics"

	"go.uber.org/zap"
)

const (
	TaskEnrollmentConfirmed = "enrollment_confirmed"
	TaskCouponExhausted     = "coupon_exhausted"
)

// NotifyTask 通知任务
type NotifyTask struct {
	Kind      string
	AccountID string
	Title     string
	Body      string
	Ext       map[string]string
	Retry     int // 重试次数
}

// Notifier 结算流程只依赖入队能力
type Notifier interface {
	Enqueue(task NotifyTask) bool
}

// WorkerPool 通知投递池，不触碰结算状态
type WorkerPool struct {
	TaskQueue  chan NotifyTask
	RetryQueue chan NotifyTask // 重试队列
	Sender     push.PushService
	WorkerNum  int
	MaxRetry   int           // 最大重试次数
	Backoff    time.Duration // 重试间隔基数

	log     *zap.Logger
	metrics *metrics.MetricsCollector
	quit    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func NewWorkerPool(sender push.PushService, workerNum, bufferSize, maxRetry int, log *zap.Logger, m *metrics.MetricsCollector) *WorkerPool {
	if log == nil {
		log = zap.NewNop()
	}
	if workerNum <= 0 {
		workerNum = 1
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &WorkerPool{
		TaskQueue:  make(chan NotifyTask, bufferSize),
		RetryQueue: make(chan NotifyTask, bufferSize/2+1),
		Sender:     sender,
		WorkerNum:  workerNum,
		MaxRetry:   maxRetry,
		Backoff:    time.Second,
		log:        log.Named("notify"),
		metrics:    m,
		quit:       make(chan struct{}),
	}
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.WorkerNum; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	// 启动重试处理协程
	p.wg.Add(1)
	go p.retryWorker()
	p.log.Info("worker pool started", zap.Int("workers", p.WorkerNum))
}

// Stop 停止所有 worker，并尽力投递主队列中剩余的任务
func (p *WorkerPool) Stop() {
	p.once.Do(func() {
		close(p.quit)
		p.wg.Wait()
		for {
			select {
			case task := <-p.TaskQueue:
				if err := p.processTask(task); err != nil {
					p.logFailedTask(task, err)
				}
			default:
				return
			}
		}
	})
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case task := <-p.TaskQueue:
			p.handle(id, task)
		}
	}
}

func (p *WorkerPool) handle(id int, task NotifyTask) {
	err := p.processTask(task)
	if err == nil {
		p.metrics.RecordNotification("sent")
		return
	}

	p.log.Warn("failed to deliver notification",
		zap.Int("worker", id),
		zap.String("kind", task.Kind),
		zap.String("account", task.AccountID),
		zap.Error(err),
	)

	// 如果未达到最大重试次数，加入重试队列
	if task.Retry < p.MaxRetry {
		task.Retry++
		select {
		case p.RetryQueue <- task:
			p.metrics.RecordNotification("retried")
		default:
			p.logFailedTask(task, err)
		}
		return
	}
	p.logFailedTask(task, err)
}

func (p *WorkerPool) retryWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case task := <-p.RetryQueue:
			// 延迟重试，避免立即重试
			timer := time.NewTimer(time.Duration(task.Retry) * p.Backoff)
			select {
			case <-p.quit:
				timer.Stop()
				p.logFailedTask(task, nil)
				return
			case <-timer.C:
			}

			select {
			case p.TaskQueue <- task:
			default:
				p.logFailedTask(task, nil)
			}
		}
	}
}

func (p *WorkerPool) processTask(task NotifyTask) error {
	return p.Sender.PushToAccount(task.AccountID, task.Title, task.Body, task.Ext)
}

// logFailedTask 死信：只记录日志，通知丢失不影响结算结果
func (p *WorkerPool) logFailedTask(task NotifyTask, err error) {
	p.metrics.RecordNotification("dropped")
	p.log.Error("notification dropped",
		zap.String("kind", task.Kind),
		zap.String("account", task.AccountID),
		zap.Int("retry", task.Retry),
		zap.Any("ext", task.Ext),
		zap.Error(err),
	)
}

// Enqueue 非阻塞入队，队列满时记录死信并返回 false
func (p *WorkerPool) Enqueue(task NotifyTask) bool {
	select {
	case p.TaskQueue <- task:
		return true
	default:
		p.logFailedTask(task, nil)
		return false
	}
}
