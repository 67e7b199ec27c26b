package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketforge/ticket-bot/internal/domain"
)

const ticketColumns = `id, guild_id, channel_id, creator_id, creator_name, button_id, select_option_id,
               case_id, priority_id, claimed_by, transcript, form_answers,
               closed, archived, deleted, created_at, last_activity_at, closed_at, archived_at, deleted_at`

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	GetByChannel(ctx context.Context, channelID string) (*domain.Ticket, error)
	NextSequence(ctx context.Context, guildID string) (int64, error)
	CountActiveForTrigger(ctx context.Context, creatorID string, kind domain.TriggerKind, triggerID int64) (int, error)

	Claim(ctx context.Context, id int64, staffID string) (bool, error)
	Unclaim(ctx context.Context, id int64) error
	MarkClosed(ctx context.Context, id int64, at time.Time) error
	MarkArchived(ctx context.Context, id int64, at time.Time) error
	MarkDeleted(ctx context.Context, id int64, at time.Time) error
	Reopen(ctx context.Context, id int64) error

	SetTranscript(ctx context.Context, id int64, pointer string) error
	SetPriority(ctx context.Context, id int64, priorityID int64) error
	AddTag(ctx context.Context, id int64, tagID int64) error
	RemoveTag(ctx context.Context, id int64, tagID int64) error
	Touch(ctx context.Context, id int64, at time.Time) error

	HardDelete(ctx context.Context, id int64) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (guild_id, channel_id, creator_id, creator_name, button_id, select_option_id,
                             case_id, priority_id, form_answers)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, last_activity_at`
	answers := ticket.FormAnswers
	if answers == nil {
		answers = map[string]string{}
	}
	return r.pool.QueryRow(ctx, query,
		ticket.GuildID,
		ticket.ChannelID,
		ticket.CreatorID,
		ticket.CreatorName,
		ticket.ButtonID,
		ticket.SelectOptionID,
		ticket.CaseID,
		ticket.PriorityID,
		answers,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.LastActivityAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE channel_id=$1 AND deleted=FALSE ORDER BY id DESC LIMIT 1`
	return r.fetchSingle(ctx, query, channelID)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	const tagQuery = `SELECT tag_id FROM ticket_tags WHERE ticket_id=$1 ORDER BY tag_id`
	rows, err := r.pool.Query(ctx, tagQuery, ticket.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tagID int64
		if err := rows.Scan(&tagID); err != nil {
			return nil, err
		}
		ticket.TagIDs = append(ticket.TagIDs, tagID)
	}
	return ticket, rows.Err()
}

// NextSequence returns the next per-guild ticket number used for channel
// name substitution.
func (r *ticketRepository) NextSequence(ctx context.Context, guildID string) (int64, error) {
	const query = `SELECT COUNT(*) + 1 FROM tickets WHERE guild_id=$1`
	var seq int64
	if err := r.pool.QueryRow(ctx, query, guildID).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *ticketRepository) CountActiveForTrigger(ctx context.Context, creatorID string, kind domain.TriggerKind, triggerID int64) (int, error) {
	column := "button_id"
	if kind == domain.TriggerKindSelectOption {
		column = "select_option_id"
	}
	query := `SELECT COUNT(*) FROM tickets WHERE creator_id=$1 AND ` + column + `=$2 AND closed=FALSE AND deleted=FALSE`
	var count int
	if err := r.pool.QueryRow(ctx, query, creatorID, triggerID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Claim sets the claim holder only when the ticket is still open and
// unclaimed, so concurrent claims resolve to a single winner.
func (r *ticketRepository) Claim(ctx context.Context, id int64, staffID string) (bool, error) {
	const query = `
        UPDATE tickets SET claimed_by=$2, last_activity_at=NOW()
        WHERE id=$1 AND claimed_by IS NULL AND closed=FALSE AND deleted=FALSE`
	cmd, err := r.pool.Exec(ctx, query, id, staffID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *ticketRepository) Unclaim(ctx context.Context, id int64) error {
	return r.exec(ctx, `UPDATE tickets SET claimed_by=NULL, last_activity_at=NOW() WHERE id=$1`, id)
}

func (r *ticketRepository) MarkClosed(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, `UPDATE tickets SET closed=TRUE, closed_at=$2, last_activity_at=$2 WHERE id=$1`, id, at)
}

func (r *ticketRepository) MarkArchived(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, `UPDATE tickets SET archived=TRUE, archived_at=$2, last_activity_at=$2 WHERE id=$1`, id, at)
}

func (r *ticketRepository) MarkDeleted(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, `UPDATE tickets SET deleted=TRUE, deleted_at=$2 WHERE id=$1`, id, at)
}

func (r *ticketRepository) Reopen(ctx context.Context, id int64) error {
	return r.exec(ctx, `
        UPDATE tickets SET closed=FALSE, archived=FALSE, closed_at=NULL, archived_at=NULL,
                           claimed_by=NULL, last_activity_at=NOW()
        WHERE id=$1 AND deleted=FALSE`, id)
}

func (r *ticketRepository) SetTranscript(ctx context.Context, id int64, pointer string) error {
	return r.exec(ctx, `UPDATE tickets SET transcript=$2 WHERE id=$1`, id, pointer)
}

func (r *ticketRepository) SetPriority(ctx context.Context, id int64, priorityID int64) error {
	return r.exec(ctx, `UPDATE tickets SET priority_id=$2, last_activity_at=NOW() WHERE id=$1`, id, priorityID)
}

func (r *ticketRepository) AddTag(ctx context.Context, id int64, tagID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO ticket_tags (ticket_id, tag_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, id, tagID)
	return err
}

func (r *ticketRepository) RemoveTag(ctx context.Context, id int64, tagID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM ticket_tags WHERE ticket_id=$1 AND tag_id=$2`, id, tagID)
	return err
}

func (r *ticketRepository) Touch(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, `UPDATE tickets SET last_activity_at=$2 WHERE id=$1`, id, at)
}

// HardDelete removes the row entirely. Used only to compensate a failed
// creation, never as part of the lifecycle.
func (r *ticketRepository) HardDelete(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM ticket_tags WHERE ticket_id=$1`, id); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	return err
}

func (r *ticketRepository) exec(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.GuildID,
		&ticket.ChannelID,
		&ticket.CreatorID,
		&ticket.CreatorName,
		&ticket.ButtonID,
		&ticket.SelectOptionID,
		&ticket.CaseID,
		&ticket.PriorityID,
		&ticket.ClaimedBy,
		&ticket.Transcript,
		&ticket.FormAnswers,
		&ticket.Closed,
		&ticket.Archived,
		&ticket.Deleted,
		&ticket.CreatedAt,
		&ticket.LastActivityAt,
		&ticket.ClosedAt,
		&ticket.ArchivedAt,
		&ticket.DeletedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
