package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketforge/ticket-bot/internal/domain"
)

// CatalogRepository persists the guild-scoped priority and tag catalogs.
type CatalogRepository interface {
	CreatePriority(ctx context.Context, priority *domain.Priority) error
	GetPriority(ctx context.Context, id int64) (*domain.Priority, error)
	ListPriorities(ctx context.Context, guildID string) ([]domain.Priority, error)

	CreateTag(ctx context.Context, tag *domain.Tag) error
	GetTag(ctx context.Context, id int64) (*domain.Tag, error)
	ListTags(ctx context.Context, guildID string) ([]domain.Tag, error)
}

type catalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository instantiates repository.
func NewCatalogRepository(pool *pgxpool.Pool) CatalogRepository {
	return &catalogRepository{pool: pool}
}

func (r *catalogRepository) CreatePriority(ctx context.Context, priority *domain.Priority) error {
	const query = `
        INSERT INTO priorities (guild_id, name, emoji, color, level, ping_staff)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		priority.GuildID,
		priority.Name,
		priority.Emoji,
		priority.Color,
		priority.Level,
		priority.PingStaff,
	).Scan(&priority.ID)
}

func (r *catalogRepository) GetPriority(ctx context.Context, id int64) (*domain.Priority, error) {
	const query = `SELECT id, guild_id, name, emoji, color, level, ping_staff FROM priorities WHERE id=$1`
	var priority domain.Priority
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&priority.ID,
		&priority.GuildID,
		&priority.Name,
		&priority.Emoji,
		&priority.Color,
		&priority.Level,
		&priority.PingStaff,
	); err != nil {
		return nil, err
	}
	return &priority, nil
}

func (r *catalogRepository) ListPriorities(ctx context.Context, guildID string) ([]domain.Priority, error) {
	const query = `SELECT id, guild_id, name, emoji, color, level, ping_staff FROM priorities WHERE guild_id=$1 ORDER BY level DESC, id`
	rows, err := r.pool.Query(ctx, query, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var priorities []domain.Priority
	for rows.Next() {
		var priority domain.Priority
		if err := rows.Scan(
			&priority.ID,
			&priority.GuildID,
			&priority.Name,
			&priority.Emoji,
			&priority.Color,
			&priority.Level,
			&priority.PingStaff,
		); err != nil {
			return nil, err
		}
		priorities = append(priorities, priority)
	}
	return priorities, rows.Err()
}

func (r *catalogRepository) CreateTag(ctx context.Context, tag *domain.Tag) error {
	const query = `
        INSERT INTO tags (guild_id, name, emoji, color)
        VALUES ($1,$2,$3,$4)
        RETURNING id`
	return r.pool.QueryRow(ctx, query, tag.GuildID, tag.Name, tag.Emoji, tag.Color).Scan(&tag.ID)
}

func (r *catalogRepository) GetTag(ctx context.Context, id int64) (*domain.Tag, error) {
	const query = `SELECT id, guild_id, name, emoji, color FROM tags WHERE id=$1`
	var tag domain.Tag
	if err := r.pool.QueryRow(ctx, query, id).Scan(&tag.ID, &tag.GuildID, &tag.Name, &tag.Emoji, &tag.Color); err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *catalogRepository) ListTags(ctx context.Context, guildID string) ([]domain.Tag, error) {
	const query = `SELECT id, guild_id, name, emoji, color FROM tags WHERE guild_id=$1 ORDER BY name`
	rows, err := r.pool.Query(ctx, query, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []domain.Tag
	for rows.Next() {
		var tag domain.Tag
		if err := rows.Scan(&tag.ID, &tag.GuildID, &tag.Name, &tag.Emoji, &tag.Color); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
