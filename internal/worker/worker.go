// Package worker retries failed spend-accounting writes out-of-band. An
// audit failure must never block or unwind a response the user already
// received, but dropping it would let tracked spend diverge from reality,
// so failed audits are queued and retried here.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lenslearn/ai-gateway/internal/governance"
	"github.com/lenslearn/ai-gateway/internal/metrics"
)

const (
	queueSize   = 256
	maxAttempts = 5
	retryDelay  = 10 * time.Second
)

type AuditJob struct {
	UserID    string
	Class     governance.RequestClass
	TokensIn  int
	TokensOut int
	Attempts  int
}

// RetryQueue re-runs audits that failed on the request path.
type RetryQueue struct {
	auditor *governance.Auditor
	jobs    chan *AuditJob
	logger  *zap.Logger
}

func NewRetryQueue(auditor *governance.Auditor, logger *zap.Logger) *RetryQueue {
	return &RetryQueue{
		auditor: auditor,
		jobs:    make(chan *AuditJob, queueSize),
		logger:  logger,
	}
}

// Enqueue is non-blocking. A full queue drops the job and reports false;
// the caller has already logged the underlying audit failure.
func (q *RetryQueue) Enqueue(job *AuditJob) bool {
	select {
	case q.jobs <- job:
		return true
	default:
		q.logger.Error("audit retry queue full, dropping job",
			zap.String("user_id", job.UserID),
			zap.String("class", string(job.Class)))
		return false
	}
}

// Process runs the retry loop until ctx is cancelled.
func (q *RetryQueue) Process(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.attempt(ctx, job)
		}
	}
}

func (q *RetryQueue) attempt(ctx context.Context, job *AuditJob) {
	attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := q.auditor.Audit(attemptCtx, job.UserID, job.Class, job.TokensIn, job.TokensOut)
	cancel()

	if err == nil {
		return
	}

	job.Attempts++
	if job.Attempts >= maxAttempts {
		metrics.RecordAuditFailure()
		q.logger.Error("audit permanently failed, spend not recorded",
			zap.String("user_id", job.UserID),
			zap.String("class", string(job.Class)),
			zap.Int("attempts", job.Attempts),
			zap.Error(err))
		return
	}

	q.logger.Warn("audit retry failed, requeueing",
		zap.String("user_id", job.UserID),
		zap.Int("attempts", job.Attempts),
		zap.Error(err))

	// Delay off the loop goroutine so one slow store does not stall
	// other jobs.
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(retryDelay):
			q.Enqueue(job)
		}
	}()
}
