package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketforge/ticket-bot/internal/domain"
)

// DeletionRepository persists deferred channel-deletion jobs.
type DeletionRepository interface {
	Schedule(ctx context.Context, deletion *domain.ScheduledDeletion) error
	DueBatch(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledDeletion, error)
	MarkProcessed(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id string, reason string) error
	CancelForTicket(ctx context.Context, ticketID int64) error
}

type deletionRepository struct {
	pool *pgxpool.Pool
}

// NewDeletionRepository instantiates repository.
func NewDeletionRepository(pool *pgxpool.Pool) DeletionRepository {
	return &deletionRepository{pool: pool}
}

func (r *deletionRepository) Schedule(ctx context.Context, deletion *domain.ScheduledDeletion) error {
	const query = `
        INSERT INTO scheduled_deletions (id, ticket_id, guild_id, channel_id, execute_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING scheduled_at`
	return r.pool.QueryRow(ctx, query,
		deletion.ID,
		deletion.TicketID,
		deletion.GuildID,
		deletion.ChannelID,
		deletion.ExecuteAt,
	).Scan(&deletion.ScheduledAt)
}

// DueBatch selects up to limit unprocessed rows whose execute_at has
// passed, oldest first. Filtering on processed keeps overlapping passes
// from touching the same rows.
func (r *deletionRepository) DueBatch(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledDeletion, error) {
	const query = `
        SELECT id, ticket_id, guild_id, channel_id, scheduled_at, execute_at, processed, retry_count, failure_reason
        FROM scheduled_deletions
        WHERE processed=FALSE AND execute_at <= $1
        ORDER BY execute_at
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batch []domain.ScheduledDeletion
	for rows.Next() {
		var deletion domain.ScheduledDeletion
		if err := rows.Scan(
			&deletion.ID,
			&deletion.TicketID,
			&deletion.GuildID,
			&deletion.ChannelID,
			&deletion.ScheduledAt,
			&deletion.ExecuteAt,
			&deletion.Processed,
			&deletion.RetryCount,
			&deletion.FailureReason,
		); err != nil {
			return nil, err
		}
		batch = append(batch, deletion)
	}
	return batch, rows.Err()
}

func (r *deletionRepository) MarkProcessed(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE scheduled_deletions SET processed=TRUE, failure_reason=NULL WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *deletionRepository) RecordFailure(ctx context.Context, id string, reason string) error {
	cmd, err := r.pool.Exec(ctx, `
        UPDATE scheduled_deletions SET retry_count=retry_count+1, failure_reason=$2
        WHERE id=$1`, id, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CancelForTicket drops pending jobs when a ticket is reopened.
func (r *deletionRepository) CancelForTicket(ctx context.Context, ticketID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM scheduled_deletions WHERE ticket_id=$1 AND processed=FALSE`, ticketID)
	return err
}
