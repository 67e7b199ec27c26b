package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketforge/ticket-bot/internal/domain"
)

// CaseRepository persists investigative cases and their ticket links.
type CaseRepository interface {
	Create(ctx context.Context, c *domain.Case, initialTicketIDs []int64) error
	GetByID(ctx context.Context, id string) (*domain.Case, error)
	LinkTicket(ctx context.Context, caseID string, ticketID int64) error
	UnlinkTicket(ctx context.Context, caseID string, ticketID int64) error
	AddNote(ctx context.Context, note *domain.CaseNote) error
	Reopen(ctx context.Context, caseID string) error

	// CloseCascade flips the case closed and, when move is non-nil,
	// collects every still-open linked ticket, invokes move per ticket and
	// bulk-flags them closed+archived, all inside one transaction. Any
	// move failure rolls the whole operation back.
	CloseCascade(ctx context.Context, caseID string, at time.Time, move func(domain.Ticket) error) ([]domain.Ticket, error)
}

type caseRepository struct {
	pool *pgxpool.Pool
}

// NewCaseRepository instantiates repository.
func NewCaseRepository(pool *pgxpool.Pool) CaseRepository {
	return &caseRepository{pool: pool}
}

func (r *caseRepository) Create(ctx context.Context, c *domain.Case, initialTicketIDs []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        INSERT INTO cases (id, guild_id, title, description, creator_id)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at`
	if err := tx.QueryRow(ctx, query, c.ID, c.GuildID, c.Title, c.Description, c.CreatorID).Scan(&c.CreatedAt); err != nil {
		return err
	}
	if len(initialTicketIDs) > 0 {
		cmd, err := tx.Exec(ctx, `UPDATE tickets SET case_id=$1 WHERE id = ANY($2) AND guild_id=$3`, c.ID, initialTicketIDs, c.GuildID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() != int64(len(initialTicketIDs)) {
			return pgx.ErrNoRows
		}
		c.TicketIDs = append([]int64{}, initialTicketIDs...)
	}
	return tx.Commit(ctx)
}

func (r *caseRepository) GetByID(ctx context.Context, id string) (*domain.Case, error) {
	const query = `
        SELECT id, guild_id, title, description, creator_id, created_at, closed_at
        FROM cases WHERE id=$1`
	var c domain.Case
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.GuildID,
		&c.Title,
		&c.Description,
		&c.CreatorID,
		&c.CreatedAt,
		&c.ClosedAt,
	); err != nil {
		return nil, err
	}

	var err error
	c.TicketIDs, err = collectIDs(r.pool.Query(ctx, `SELECT id FROM tickets WHERE case_id=$1 ORDER BY id`, id))
	if err != nil {
		return nil, err
	}

	const noteQuery = `SELECT id, case_id, author_id, body, created_at FROM case_notes WHERE case_id=$1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, noteQuery, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var note domain.CaseNote
		if err := rows.Scan(&note.ID, &note.CaseID, &note.AuthorID, &note.Body, &note.CreatedAt); err != nil {
			return nil, err
		}
		c.Notes = append(c.Notes, note)
	}
	return &c, rows.Err()
}

func (r *caseRepository) LinkTicket(ctx context.Context, caseID string, ticketID int64) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE tickets SET case_id=$1 WHERE id=$2`, caseID, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *caseRepository) UnlinkTicket(ctx context.Context, caseID string, ticketID int64) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE tickets SET case_id=NULL WHERE id=$1 AND case_id=$2`, ticketID, caseID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *caseRepository) AddNote(ctx context.Context, note *domain.CaseNote) error {
	const query = `
        INSERT INTO case_notes (id, case_id, author_id, body)
        VALUES ($1,$2,$3,$4)
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query, note.ID, note.CaseID, note.AuthorID, note.Body).Scan(&note.CreatedAt)
}

func (r *caseRepository) Reopen(ctx context.Context, caseID string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE cases SET closed_at=NULL WHERE id=$1 AND closed_at IS NOT NULL`, caseID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *caseRepository) CloseCascade(ctx context.Context, caseID string, at time.Time, move func(domain.Ticket) error) ([]domain.Ticket, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cmd, err := tx.Exec(ctx, `UPDATE cases SET closed_at=$2 WHERE id=$1 AND closed_at IS NULL`, caseID, at)
	if err != nil {
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		return nil, pgx.ErrNoRows
	}

	var affected []domain.Ticket
	if move != nil {
		query := `SELECT ` + ticketColumns + `
            FROM tickets
            WHERE case_id=$1 AND closed=FALSE AND deleted=FALSE
            ORDER BY id
            FOR UPDATE`
		rows, err := tx.Query(ctx, query, caseID)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			ticket, err := scanTicket(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			affected = append(affected, *ticket)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		ids := make([]int64, 0, len(affected))
		for _, ticket := range affected {
			if err := move(ticket); err != nil {
				return nil, err
			}
			ids = append(ids, ticket.ID)
		}
		if len(ids) > 0 {
			const flag = `
                UPDATE tickets SET closed=TRUE, archived=TRUE, closed_at=$2, archived_at=$2, last_activity_at=$2
                WHERE id = ANY($1)`
			if _, err := tx.Exec(ctx, flag, ids, at); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return affected, nil
}
