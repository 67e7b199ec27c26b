package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketforge/ticket-bot/internal/domain"
)

const triggerColumns = `id, panel_id, label, style, emoji, position, category_id, archive_category_id,
               support_role_ids, viewer_role_ids,
               close_delete, close_lock, close_rename, close_remove_creator, close_delete_delay_seconds,
               archive_delete, archive_lock, archive_rename, archive_remove_creator,
               auto_archive_on_close, auto_close_seconds, required_response_seconds,
               max_active_tickets, allowed_priority_ids, default_priority_id,
               save_transcript, form_fields_json, opening_message, channel_name_format`

// PanelRepository persists panels and their ordered triggers.
type PanelRepository interface {
	Create(ctx context.Context, panel *domain.Panel) error
	GetByID(ctx context.Context, id int64) (*domain.Panel, error)
	ListByGuild(ctx context.Context, guildID string) ([]domain.Panel, error)
	SetMessage(ctx context.Context, id int64, channelID, messageID string) error

	AddButton(ctx context.Context, trigger *domain.Trigger) error
	AddMenu(ctx context.Context, menu *domain.SelectMenu) error
	AddOption(ctx context.Context, trigger *domain.Trigger) error
	GetTrigger(ctx context.Context, kind domain.TriggerKind, id int64) (*domain.Trigger, error)
	UpdateTrigger(ctx context.Context, kind domain.TriggerKind, id int64, update domain.TriggerUpdate) error

	TriggerIDs(ctx context.Context, panelID int64) (buttonIDs, optionIDs []int64, err error)
	ReferencingTickets(ctx context.Context, buttonIDs, optionIDs []int64) ([]domain.Ticket, error)
	DetachAndDelete(ctx context.Context, panelID int64, buttonIDs, optionIDs []int64) error
}

type panelRepository struct {
	pool *pgxpool.Pool
}

// NewPanelRepository instantiates repository.
func NewPanelRepository(pool *pgxpool.Pool) PanelRepository {
	return &panelRepository{pool: pool}
}

func (r *panelRepository) Create(ctx context.Context, panel *domain.Panel) error {
	const query = `
        INSERT INTO panels (guild_id, channel_id, message_id, embed_json)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		panel.GuildID,
		panel.ChannelID,
		panel.MessageID,
		panel.EmbedJSON,
	).Scan(&panel.ID, &panel.CreatedAt, &panel.UpdatedAt)
}

func (r *panelRepository) GetByID(ctx context.Context, id int64) (*domain.Panel, error) {
	const query = `
        SELECT id, guild_id, channel_id, message_id, embed_json, created_at, updated_at
        FROM panels WHERE id=$1`
	var panel domain.Panel
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&panel.ID,
		&panel.GuildID,
		&panel.ChannelID,
		&panel.MessageID,
		&panel.EmbedJSON,
		&panel.CreatedAt,
		&panel.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := r.loadTriggers(ctx, &panel); err != nil {
		return nil, err
	}
	return &panel, nil
}

func (r *panelRepository) ListByGuild(ctx context.Context, guildID string) ([]domain.Panel, error) {
	const query = `
        SELECT id, guild_id, channel_id, message_id, embed_json, created_at, updated_at
        FROM panels WHERE guild_id=$1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var panels []domain.Panel
	for rows.Next() {
		var panel domain.Panel
		if err := rows.Scan(
			&panel.ID,
			&panel.GuildID,
			&panel.ChannelID,
			&panel.MessageID,
			&panel.EmbedJSON,
			&panel.CreatedAt,
			&panel.UpdatedAt,
		); err != nil {
			return nil, err
		}
		panels = append(panels, panel)
	}
	return panels, rows.Err()
}

// loadTriggers rehydrates the panel's ordered buttons, menus and options.
func (r *panelRepository) loadTriggers(ctx context.Context, panel *domain.Panel) error {
	buttonQuery := `SELECT ` + triggerColumns + ` FROM panel_buttons WHERE panel_id=$1 ORDER BY position, id`
	rows, err := r.pool.Query(ctx, buttonQuery, panel.ID)
	if err != nil {
		return err
	}
	panel.Buttons, err = collectTriggers(rows, domain.TriggerKindButton)
	if err != nil {
		return err
	}

	const menuQuery = `SELECT id, panel_id, placeholder, position FROM panel_menus WHERE panel_id=$1 ORDER BY position, id`
	menuRows, err := r.pool.Query(ctx, menuQuery, panel.ID)
	if err != nil {
		return err
	}
	defer menuRows.Close()
	panel.Menus = nil
	for menuRows.Next() {
		var menu domain.SelectMenu
		if err := menuRows.Scan(&menu.ID, &menu.PanelID, &menu.Placeholder, &menu.Position); err != nil {
			return err
		}
		panel.Menus = append(panel.Menus, menu)
	}
	if err := menuRows.Err(); err != nil {
		return err
	}

	for i := range panel.Menus {
		optionQuery := `SELECT ` + triggerColumns + `, menu_id FROM panel_menu_options WHERE menu_id=$1 ORDER BY position, id`
		optionRows, err := r.pool.Query(ctx, optionQuery, panel.Menus[i].ID)
		if err != nil {
			return err
		}
		options, err := collectOptionTriggers(optionRows)
		if err != nil {
			return err
		}
		panel.Menus[i].Options = options
	}
	return nil
}

func (r *panelRepository) SetMessage(ctx context.Context, id int64, channelID, messageID string) error {
	const query = `UPDATE panels SET channel_id=$2, message_id=$3, updated_at=NOW() WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id, channelID, messageID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *panelRepository) AddButton(ctx context.Context, trigger *domain.Trigger) error {
	query := `
        INSERT INTO panel_buttons (` + triggerInsertColumns + `)
        VALUES (` + triggerInsertPlaceholders(1) + `)
        RETURNING id`
	args := triggerInsertArgs(trigger)
	return r.pool.QueryRow(ctx, query, args...).Scan(&trigger.ID)
}

func (r *panelRepository) AddMenu(ctx context.Context, menu *domain.SelectMenu) error {
	const query = `
        INSERT INTO panel_menus (panel_id, placeholder, position)
        VALUES ($1,$2,$3)
        RETURNING id`
	return r.pool.QueryRow(ctx, query, menu.PanelID, menu.Placeholder, menu.Position).Scan(&menu.ID)
}

func (r *panelRepository) AddOption(ctx context.Context, trigger *domain.Trigger) error {
	if trigger.MenuID == nil {
		return fmt.Errorf("select option requires a menu id")
	}
	query := `
        INSERT INTO panel_menu_options (` + triggerInsertColumns + `, menu_id)
        VALUES (` + triggerInsertPlaceholders(1) + `,$` + fmt.Sprint(triggerInsertCount+1) + `)
        RETURNING id`
	args := append(triggerInsertArgs(trigger), *trigger.MenuID)
	return r.pool.QueryRow(ctx, query, args...).Scan(&trigger.ID)
}

func (r *panelRepository) GetTrigger(ctx context.Context, kind domain.TriggerKind, id int64) (*domain.Trigger, error) {
	table := triggerTable(kind)
	query := `SELECT ` + triggerColumns + ` FROM ` + table + ` WHERE id=$1`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	triggers, err := collectTriggers(rows, kind)
	if err != nil {
		return nil, err
	}
	if len(triggers) == 0 {
		return nil, pgx.ErrNoRows
	}
	trigger := triggers[0]
	return &trigger, nil
}

func (r *panelRepository) UpdateTrigger(ctx context.Context, kind domain.TriggerKind, id int64, update domain.TriggerUpdate) error {
	sets := []string{}
	args := []any{}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}

	if update.Label != nil {
		set("label", *update.Label)
	}
	if update.Style != nil {
		set("style", *update.Style)
	}
	if update.Emoji != nil {
		set("emoji", *update.Emoji)
	}
	if update.CategoryID != nil {
		set("category_id", nullableText(*update.CategoryID))
	}
	if update.ArchiveCategoryID != nil {
		set("archive_category_id", nullableText(*update.ArchiveCategoryID))
	}
	if update.SupportRoleIDs != nil {
		set("support_role_ids", update.SupportRoleIDs)
	}
	if update.ViewerRoleIDs != nil {
		set("viewer_role_ids", update.ViewerRoleIDs)
	}
	if update.CloseBehavior != nil {
		set("close_delete", update.CloseBehavior.Delete)
		set("close_lock", update.CloseBehavior.Lock)
		set("close_rename", update.CloseBehavior.Rename)
		set("close_remove_creator", update.CloseBehavior.RemoveCreator)
		set("close_delete_delay_seconds", durationSeconds(update.CloseBehavior.DeleteDelay))
	}
	if update.ArchiveBehavior != nil {
		set("archive_delete", update.ArchiveBehavior.Delete)
		set("archive_lock", update.ArchiveBehavior.Lock)
		set("archive_rename", update.ArchiveBehavior.Rename)
		set("archive_remove_creator", update.ArchiveBehavior.RemoveCreator)
	}
	if update.AutoArchiveOnClose != nil {
		set("auto_archive_on_close", *update.AutoArchiveOnClose)
	}
	if update.AutoCloseAfter != nil {
		set("auto_close_seconds", durationSeconds(update.AutoCloseAfter))
	}
	if update.RequiredResponseTime != nil {
		set("required_response_seconds", durationSeconds(update.RequiredResponseTime))
	}
	if update.MaxActiveTickets != nil {
		if *update.MaxActiveTickets <= 0 {
			set("max_active_tickets", nil)
		} else {
			set("max_active_tickets", *update.MaxActiveTickets)
		}
	}
	if update.AllowedPriorityIDs != nil {
		set("allowed_priority_ids", update.AllowedPriorityIDs)
	}
	if update.DefaultPriorityID != nil {
		if *update.DefaultPriorityID <= 0 {
			set("default_priority_id", nil)
		} else {
			set("default_priority_id", *update.DefaultPriorityID)
		}
	}
	if update.SaveTranscript != nil {
		set("save_transcript", *update.SaveTranscript)
	}
	if update.FormFieldsJSON != nil {
		set("form_fields_json", nullableText(*update.FormFieldsJSON))
	}
	if update.OpeningMessage != nil {
		set("opening_message", nullableText(*update.OpeningMessage))
	}
	if update.ChannelNameFormat != nil {
		set("channel_name_format", *update.ChannelNameFormat)
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id=$%d", triggerTable(kind), strings.Join(sets, ", "), len(args))
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *panelRepository) TriggerIDs(ctx context.Context, panelID int64) ([]int64, []int64, error) {
	buttonIDs, err := collectIDs(r.pool.Query(ctx, `SELECT id FROM panel_buttons WHERE panel_id=$1`, panelID))
	if err != nil {
		return nil, nil, err
	}
	optionIDs, err := collectIDs(r.pool.Query(ctx, `SELECT id FROM panel_menu_options WHERE panel_id=$1`, panelID))
	if err != nil {
		return nil, nil, err
	}
	return buttonIDs, optionIDs, nil
}

// ReferencingTickets returns every ticket, soft-deleted included, whose
// trigger foreign key points at one of the given triggers.
func (r *panelRepository) ReferencingTickets(ctx context.Context, buttonIDs, optionIDs []int64) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE button_id = ANY($1) OR select_option_id = ANY($2)
        ORDER BY id`
	rows, err := r.pool.Query(ctx, query, buttonIDs, optionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
	}
	return tickets, rows.Err()
}

// DetachAndDelete nulls the trigger foreign key on every referencing ticket
// and cascade-deletes options, menus, buttons and the panel row in one
// transaction. The store enforces foreign keys irrespective of soft-delete
// status, so the detach covers soft-deleted tickets too.
func (r *panelRepository) DetachAndDelete(ctx context.Context, panelID int64, buttonIDs, optionIDs []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if len(buttonIDs) > 0 {
		if _, err := tx.Exec(ctx, `UPDATE tickets SET button_id=NULL WHERE button_id = ANY($1)`, buttonIDs); err != nil {
			return err
		}
	}
	if len(optionIDs) > 0 {
		if _, err := tx.Exec(ctx, `UPDATE tickets SET select_option_id=NULL WHERE select_option_id = ANY($1)`, optionIDs); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM panel_menu_options WHERE panel_id=$1`, panelID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM panel_menus WHERE panel_id=$1`, panelID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM panel_buttons WHERE panel_id=$1`, panelID); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx, `DELETE FROM panels WHERE id=$1`, panelID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

const triggerInsertColumns = `panel_id, label, style, emoji, position, category_id, archive_category_id,
        support_role_ids, viewer_role_ids,
        close_delete, close_lock, close_rename, close_remove_creator, close_delete_delay_seconds,
        archive_delete, archive_lock, archive_rename, archive_remove_creator,
        auto_archive_on_close, auto_close_seconds, required_response_seconds,
        max_active_tickets, allowed_priority_ids, default_priority_id,
        save_transcript, form_fields_json, opening_message, channel_name_format`

const triggerInsertCount = 28

func triggerInsertPlaceholders(start int) string {
	parts := make([]string, triggerInsertCount)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ",")
}

func triggerInsertArgs(t *domain.Trigger) []any {
	supportRoles := t.SupportRoleIDs
	if supportRoles == nil {
		supportRoles = []string{}
	}
	viewerRoles := t.ViewerRoleIDs
	if viewerRoles == nil {
		viewerRoles = []string{}
	}
	allowedPriorities := t.AllowedPriorityIDs
	if allowedPriorities == nil {
		allowedPriorities = []int64{}
	}
	return []any{
		t.PanelID,
		t.Label,
		t.Style,
		t.Emoji,
		t.Position,
		t.CategoryID,
		t.ArchiveCategoryID,
		supportRoles,
		viewerRoles,
		t.CloseBehavior.Delete,
		t.CloseBehavior.Lock,
		t.CloseBehavior.Rename,
		t.CloseBehavior.RemoveCreator,
		durationSeconds(t.CloseBehavior.DeleteDelay),
		t.ArchiveBehavior.Delete,
		t.ArchiveBehavior.Lock,
		t.ArchiveBehavior.Rename,
		t.ArchiveBehavior.RemoveCreator,
		t.AutoArchiveOnClose,
		durationSeconds(t.AutoCloseAfter),
		durationSeconds(t.RequiredResponseTime),
		t.MaxActiveTickets,
		allowedPriorities,
		t.DefaultPriorityID,
		t.SaveTranscript,
		t.FormFieldsJSON,
		t.OpeningMessage,
		t.ChannelNameFormat,
	}
}

func triggerTable(kind domain.TriggerKind) string {
	if kind == domain.TriggerKindSelectOption {
		return "panel_menu_options"
	}
	return "panel_buttons"
}

func collectTriggers(rows pgx.Rows, kind domain.TriggerKind) ([]domain.Trigger, error) {
	defer rows.Close()
	var triggers []domain.Trigger
	for rows.Next() {
		trigger, err := scanTrigger(rows, nil)
		if err != nil {
			return nil, err
		}
		trigger.Kind = kind
		triggers = append(triggers, *trigger)
	}
	return triggers, rows.Err()
}

func collectOptionTriggers(rows pgx.Rows) ([]domain.Trigger, error) {
	defer rows.Close()
	var triggers []domain.Trigger
	for rows.Next() {
		var menuID int64
		trigger, err := scanTrigger(rows, &menuID)
		if err != nil {
			return nil, err
		}
		trigger.Kind = domain.TriggerKindSelectOption
		trigger.MenuID = &menuID
		triggers = append(triggers, *trigger)
	}
	return triggers, rows.Err()
}

func scanTrigger(rows pgx.Rows, menuID *int64) (*domain.Trigger, error) {
	var (
		trigger          domain.Trigger
		closeDelaySecs   *int
		autoCloseSecs    *int
		requiredRespSecs *int
	)
	dest := []any{
		&trigger.ID,
		&trigger.PanelID,
		&trigger.Label,
		&trigger.Style,
		&trigger.Emoji,
		&trigger.Position,
		&trigger.CategoryID,
		&trigger.ArchiveCategoryID,
		&trigger.SupportRoleIDs,
		&trigger.ViewerRoleIDs,
		&trigger.CloseBehavior.Delete,
		&trigger.CloseBehavior.Lock,
		&trigger.CloseBehavior.Rename,
		&trigger.CloseBehavior.RemoveCreator,
		&closeDelaySecs,
		&trigger.ArchiveBehavior.Delete,
		&trigger.ArchiveBehavior.Lock,
		&trigger.ArchiveBehavior.Rename,
		&trigger.ArchiveBehavior.RemoveCreator,
		&trigger.AutoArchiveOnClose,
		&autoCloseSecs,
		&requiredRespSecs,
		&trigger.MaxActiveTickets,
		&trigger.AllowedPriorityIDs,
		&trigger.DefaultPriorityID,
		&trigger.SaveTranscript,
		&trigger.FormFieldsJSON,
		&trigger.OpeningMessage,
		&trigger.ChannelNameFormat,
	}
	if menuID != nil {
		dest = append(dest, menuID)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	trigger.CloseBehavior.DeleteDelay = secondsDuration(closeDelaySecs)
	trigger.AutoCloseAfter = secondsDuration(autoCloseSecs)
	trigger.RequiredResponseTime = secondsDuration(requiredRespSecs)
	return &trigger, nil
}

func collectIDs(rows pgx.Rows, err error) ([]int64, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func durationSeconds(d *time.Duration) *int {
	if d == nil || *d <= 0 {
		return nil
	}
	secs := int(*d / time.Second)
	return &secs
}

func secondsDuration(secs *int) *time.Duration {
	if secs == nil {
		return nil
	}
	d := time.Duration(*secs) * time.Second
	return &d
}
