package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ticketforge/ticket-bot/internal/domain"
)

// SettingsRepository persists guild-wide ticket defaults.
type SettingsRepository interface {
	Get(ctx context.Context, guildID string) (*domain.GuildTicketSettings, error)
	Upsert(ctx context.Context, settings *domain.GuildTicketSettings) error
}

type settingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository instantiates repository.
func NewSettingsRepository(pool *pgxpool.Pool) SettingsRepository {
	return &settingsRepository{pool: pool}
}

// Get returns the stored settings, or zero-value defaults when the guild
// has never been configured.
func (r *settingsRepository) Get(ctx context.Context, guildID string) (*domain.GuildTicketSettings, error) {
	const query = `
        SELECT guild_id, close_delete, close_lock, close_rename, close_remove_creator, close_delete_delay_seconds,
               notify_support_roles, notify_members_dm, blacklist, transcript_channel_id, log_channel_id, updated_at
        FROM guild_ticket_settings WHERE guild_id=$1`

	var (
		settings  domain.GuildTicketSettings
		behavior  domain.CloseBehavior
		delaySecs *int
	)
	err := r.pool.QueryRow(ctx, query, guildID).Scan(
		&settings.GuildID,
		&behavior.Delete,
		&behavior.Lock,
		&behavior.Rename,
		&behavior.RemoveCreator,
		&delaySecs,
		&settings.NotifySupportRoles,
		&settings.NotifyMembersDM,
		&settings.Blacklist,
		&settings.TranscriptChannelID,
		&settings.LogChannelID,
		&settings.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.GuildTicketSettings{GuildID: guildID, NotifySupportRoles: true}, nil
	}
	if err != nil {
		return nil, err
	}
	behavior.DeleteDelay = secondsDuration(delaySecs)
	if behavior.Delete != nil || behavior.Lock != nil || behavior.Rename != nil ||
		behavior.RemoveCreator != nil || behavior.DeleteDelay != nil {
		settings.CloseBehavior = &behavior
	}
	return &settings, nil
}

func (r *settingsRepository) Upsert(ctx context.Context, settings *domain.GuildTicketSettings) error {
	behavior := settings.CloseBehavior
	if behavior == nil {
		behavior = &domain.CloseBehavior{}
	}
	blacklist := settings.Blacklist
	if blacklist == nil {
		blacklist = []string{}
	}
	const query = `
        INSERT INTO guild_ticket_settings
            (guild_id, close_delete, close_lock, close_rename, close_remove_creator, close_delete_delay_seconds,
             notify_support_roles, notify_members_dm, blacklist, transcript_channel_id, log_channel_id, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())
        ON CONFLICT (guild_id) DO UPDATE SET
            close_delete=EXCLUDED.close_delete,
            close_lock=EXCLUDED.close_lock,
            close_rename=EXCLUDED.close_rename,
            close_remove_creator=EXCLUDED.close_remove_creator,
            close_delete_delay_seconds=EXCLUDED.close_delete_delay_seconds,
            notify_support_roles=EXCLUDED.notify_support_roles,
            notify_members_dm=EXCLUDED.notify_members_dm,
            blacklist=EXCLUDED.blacklist,
            transcript_channel_id=EXCLUDED.transcript_channel_id,
            log_channel_id=EXCLUDED.log_channel_id,
            updated_at=NOW()`
	_, err := r.pool.Exec(ctx, query,
		settings.GuildID,
		behavior.Delete,
		behavior.Lock,
		behavior.Rename,
		behavior.RemoveCreator,
		durationSeconds(behavior.DeleteDelay),
		settings.NotifySupportRoles,
		settings.NotifyMembersDM,
		blacklist,
		settings.TranscriptChannelID,
		settings.LogChannelID,
	)
	return err
}

const settingsCacheTTL = 60 * time.Second

// CachedSettings decorates a SettingsRepository with a short-lived redis
// read cache. Upserts invalidate the cached entry; cache failures fall
// through to the store.
type CachedSettings struct {
	inner  SettingsRepository
	client *redis.Client
	logger *zap.Logger
}

// NewCachedSettings wraps the repository with the redis cache.
func NewCachedSettings(inner SettingsRepository, client *redis.Client, logger *zap.Logger) *CachedSettings {
	return &CachedSettings{inner: inner, client: client, logger: logger}
}

func settingsCacheKey(guildID string) string {
	return "ticket:settings:" + guildID
}

func (c *CachedSettings) Get(ctx context.Context, guildID string) (*domain.GuildTicketSettings, error) {
	if c.client != nil {
		raw, err := c.client.Get(ctx, settingsCacheKey(guildID)).Bytes()
		if err == nil {
			var settings domain.GuildTicketSettings
			if err := json.Unmarshal(raw, &settings); err == nil {
				return &settings, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("settings cache read failed", zap.String("guild_id", guildID), zap.Error(err))
		}
	}

	settings, err := c.inner.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if c.client != nil {
		if raw, err := json.Marshal(settings); err == nil {
			if err := c.client.Set(ctx, settingsCacheKey(guildID), raw, settingsCacheTTL).Err(); err != nil {
				c.logger.Warn("settings cache write failed", zap.String("guild_id", guildID), zap.Error(err))
			}
		}
	}
	return settings, nil
}

func (c *CachedSettings) Upsert(ctx context.Context, settings *domain.GuildTicketSettings) error {
	if err := c.inner.Upsert(ctx, settings); err != nil {
		return err
	}
	if c.client != nil {
		if err := c.client.Del(ctx, settingsCacheKey(settings.GuildID)).Err(); err != nil {
			c.logger.Warn("settings cache invalidate failed", zap.String("guild_id", settings.GuildID), zap.Error(err))
		}
	}
	return nil
}
