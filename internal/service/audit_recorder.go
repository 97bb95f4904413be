package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alillje/lillje-consulting-auth-service/internal/models"
	"github.com/alillje/lillje-consulting-auth-service/pkg/jobs"
)

type auditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditRecorderConfig governs the background audit writer.
type AuditRecorderConfig struct {
	Enabled    bool
	Workers    int
	BufferSize int
}

// AuditRecorder persists audit entries through a bounded background
// queue. Enqueueing never blocks and never fails the calling flow: a
// saturated queue drops the entry and counts it instead.
type AuditRecorder struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditRecorder constructs an AuditRecorder instance. A disabled
// recorder is valid and silently discards entries.
func NewAuditRecorder(repo auditRepository, logger *zap.Logger, cfg AuditRecorderConfig) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &AuditRecorder{logger: logger}
	if !cfg.Enabled || repo == nil {
		return r
	}

	r.queue = jobs.NewQueue("audit", func(ctx context.Context, job jobs.Job) error {
		entry, ok := job.Payload.(*models.AuditLog)
		if !ok {
			return nil
		}
		return repo.CreateAuditLog(ctx, entry)
	}, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
		Logger:     logger,
	})

	return r
}

// Start begins background persistence of queued entries.
func (r *AuditRecorder) Start(ctx context.Context) {
	if r.queue != nil {
		r.queue.Start(ctx)
	}
}

// Stop drains the workers.
func (r *AuditRecorder) Stop() {
	if r.queue != nil {
		r.queue.Stop()
	}
}

// Record enqueues an audit entry without blocking.
func (r *AuditRecorder) Record(entry *models.AuditLog) {
	if r == nil || r.queue == nil || entry == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if !r.queue.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: entry.Action, Payload: entry}) {
		r.logger.Sugar().Warnw("audit entry dropped", "action", entry.Action)
	}
}

// Dropped returns how many entries were rejected by the queue.
func (r *AuditRecorder) Dropped() uint64 {
	if r == nil || r.queue == nil {
		return 0
	}
	return r.queue.Dropped()
}
