package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/storefront-api/internal/models"
	"github.com/noah-isme/storefront-api/pkg/jobs"
)

const auditJobType = "audit_log"

// Auditor records credential and account events.
type Auditor interface {
	Record(ctx context.Context, entry models.AuditLog)
}

type auditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type auditQueue interface {
	TryEnqueue(job jobs.Job) error
}

// AuditService writes audit rows off the request path through the job queue.
// When the queue is unavailable the row is written inline.
type AuditService struct {
	repo   auditRepository
	queue  auditQueue
	logger *zap.Logger
}

// NewAuditService constructs the audit writer. Call AttachQueue once the
// queue built around HandleJob is running.
func NewAuditService(repo auditRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger}
}

// AttachQueue routes subsequent records through q.
func (s *AuditService) AttachQueue(q auditQueue) {
	s.queue = q
}

// Record stores entry asynchronously. Failures are logged, never returned.
func (s *AuditService) Record(ctx context.Context, entry models.AuditLog) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if s.queue != nil {
		err := s.queue.TryEnqueue(jobs.Job{ID: entry.ID, Type: auditJobType, Payload: entry})
		if err == nil {
			return
		}
		s.logger.Warn("audit queue unavailable, writing inline", zap.String("action", entry.Action), zap.Error(err))
	}
	if err := s.repo.CreateAuditLog(ctx, &entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

// HandleJob is the queue handler persisting one audit row.
func (s *AuditService) HandleJob(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.AuditLog)
	if !ok {
		return fmt.Errorf("audit job %s: unexpected payload %T", job.ID, job.Payload)
	}
	return s.repo.CreateAuditLog(ctx, &entry)
}

func auditEntry(action, resource string, userID, resourceID string, meta models.RequestMeta, newValues []byte) models.AuditLog {
	entry := models.AuditLog{
		Action:    action,
		Resource:  resource,
		NewValues: newValues,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}
	if userID != "" {
		entry.UserID = &userID
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	return entry
}
