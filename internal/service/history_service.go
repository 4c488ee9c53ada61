package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kinoplex/auth-api/internal/models"
	"github.com/kinoplex/auth-api/pkg/jobs"
)

type historyRepository interface {
	Create(ctx context.Context, entry *models.AccountHistory) error
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.AccountHistory, int, error)
}

// HistoryService records authentication events through a background queue so
// the login and refresh paths never block on the history table.
type HistoryService struct {
	repo   historyRepository
	queue  *jobs.Queue
	logger *zap.Logger
}

// HistoryConfig tunes the background writer.
type HistoryConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
}

// NewHistoryService constructs the service and its queue. Start must be
// called before Record has any effect.
func NewHistoryService(repo historyRepository, cfg HistoryConfig, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &HistoryService{repo: repo, logger: logger}
	s.queue = jobs.NewQueue("account-history", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers.
func (s *HistoryService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *HistoryService) Stop() {
	s.queue.Stop()
}

// Record enqueues a history entry. History is best effort: a full queue or
// failed write degrades to a log line, never to a failed auth operation.
func (s *HistoryService) Record(entry models.AccountHistory) {
	if err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    entry.Event,
		Payload: entry,
	}); err != nil {
		s.logger.Warn("failed to enqueue history entry", zap.String("event", entry.Event), zap.Error(err))
	}
}

// List returns a page of a user's account history.
func (s *HistoryService) List(ctx context.Context, userID string, page, pageSize int) ([]models.AccountHistory, int, error) {
	return s.repo.ListByUser(ctx, userID, page, pageSize)
}

func (s *HistoryService) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.AccountHistory)
	if !ok {
		s.logger.Error("history job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.repo.Create(ctx, &entry)
}
