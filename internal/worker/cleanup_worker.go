package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ticketforge/ticket-bot/internal/config"
	"github.com/ticketforge/ticket-bot/internal/observability"
	"github.com/ticketforge/ticket-bot/internal/platform"
	"github.com/ticketforge/ticket-bot/internal/repository"
)

const cleanupLockKey = "ticket:cleanup:lock"

// CleanupWorker is the periodic batch pass that executes deferred channel
// deletions. It is single-flight: a redis lock keeps concurrent instances
// from running a pass at the same time, and the processed flag keeps a
// crashed pass from re-deleting what it already finished.
type CleanupWorker struct {
	deletions repository.DeletionRepository
	tickets   repository.TicketRepository
	client    platform.Client
	redis     *redis.Client
	cfg       config.CleanupConfig
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewCleanupWorker constructs the worker.
func NewCleanupWorker(deletions repository.DeletionRepository, tickets repository.TicketRepository, client platform.Client, redisClient *redis.Client, cfg config.CleanupConfig, metrics *observability.Metrics, logger *zap.Logger) *CleanupWorker {
	return &CleanupWorker{
		deletions: deletions,
		tickets:   tickets,
		client:    client,
		redis:     redisClient,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run loops until the context is cancelled.
func (w *CleanupWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed, failed := w.RunOnce(ctx)
			if processed > 0 || failed > 0 {
				w.logger.Info("cleanup pass finished",
					zap.Int("processed", processed),
					zap.Int("failed", failed))
			}
		}
	}
}

// RunOnce executes a single batch pass and reports how many rows were
// processed and how many failed. A failure on one row never aborts the
// batch.
func (w *CleanupWorker) RunOnce(ctx context.Context) (processed, failed int) {
	if !w.acquireLock(ctx) {
		return 0, 0
	}
	defer w.releaseLock(ctx)

	batch, err := w.deletions.DueBatch(ctx, time.Now().UTC(), w.cfg.BatchSize)
	if err != nil {
		w.logger.Error("due batch query failed", zap.Error(err))
		return 0, 0
	}

	for _, deletion := range batch {
		if err := w.processRow(ctx, deletion.ID, deletion.TicketID, deletion.ChannelID); err != nil {
			failed++
			if recErr := w.deletions.RecordFailure(ctx, deletion.ID, err.Error()); recErr != nil {
				w.logger.Error("failure bookkeeping failed",
					zap.String("deletion_id", deletion.ID),
					zap.Error(recErr))
			}
			w.logger.Warn("scheduled deletion failed",
				zap.String("deletion_id", deletion.ID),
				zap.Int64("ticket_id", deletion.TicketID),
				zap.Int("retry_count", deletion.RetryCount+1),
				zap.Error(err))
			w.metrics.RecordEvent("cleanup.failed")
			continue
		}
		processed++
		w.metrics.RecordEvent("cleanup.deleted")
	}
	return processed, failed
}

func (w *CleanupWorker) processRow(ctx context.Context, deletionID string, ticketID int64, channelID string) error {
	if err := w.client.DeleteChannel(ctx, channelID); err != nil && !platform.IsNotFound(err) {
		return err
	}
	if err := w.tickets.MarkDeleted(ctx, ticketID, time.Now().UTC()); err != nil {
		return err
	}
	return w.deletions.MarkProcessed(ctx, deletionID)
}

// acquireLock takes the single-flight lock. Without redis the worker runs
// unguarded, which is fine for a single instance.
func (w *CleanupWorker) acquireLock(ctx context.Context) bool {
	if w.redis == nil {
		return true
	}
	ok, err := w.redis.SetNX(ctx, cleanupLockKey, "1", w.cfg.LockTTL()).Result()
	if err != nil {
		w.logger.Warn("cleanup lock acquire failed; skipping pass", zap.Error(err))
		return false
	}
	return ok
}

func (w *CleanupWorker) releaseLock(ctx context.Context) {
	if w.redis == nil {
		return
	}
	if err := w.redis.Del(ctx, cleanupLockKey).Err(); err != nil {
		w.logger.Warn("cleanup lock release failed", zap.Error(err))
	}
}
