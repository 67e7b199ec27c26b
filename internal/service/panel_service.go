package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ticketforge/ticket-bot/internal/domain"
	"github.com/ticketforge/ticket-bot/internal/events"
	"github.com/ticketforge/ticket-bot/internal/platform"
	"github.com/ticketforge/ticket-bot/internal/repository"
	"github.com/ticketforge/ticket-bot/pkg/util"
)

const maxButtonsPerRow = 5

// PanelService persists panels with their ordered triggers and guards
// destructive deletion against dangling ticket references.
type PanelService struct {
	panels     repository.PanelRepository
	client     platform.Client
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewPanelService constructs the service.
func NewPanelService(panels repository.PanelRepository, client platform.Client, dispatcher events.Dispatcher, logger *zap.Logger) *PanelService {
	return &PanelService{panels: panels, client: client, dispatcher: dispatcher, logger: logger}
}

// ButtonCustomID is the component id users activate to open a ticket.
func ButtonCustomID(buttonID int64) string {
	return fmt.Sprintf("ticket_button_%d", buttonID)
}

// MenuCustomID identifies a panel select menu component.
func MenuCustomID(menuID int64) string {
	return fmt.Sprintf("ticket_menu_%d", menuID)
}

// OptionValue identifies a select option inside a menu.
func OptionValue(optionID int64) string {
	return fmt.Sprintf("ticket_option_%d", optionID)
}

// ListPanels returns the guild's panels with their trigger sets.
func (s *PanelService) ListPanels(ctx context.Context, guildID string) ([]domain.Panel, error) {
	panels, err := s.panels.ListByGuild(ctx, guildID)
	if err != nil {
		return nil, util.MapError(err)
	}
	return panels, nil
}

// Panel returns one panel by id.
func (s *PanelService) Panel(ctx context.Context, panelID int64) (*domain.Panel, error) {
	return s.getPanel(ctx, panelID)
}

// CreatePanel persists the panel and publishes its message.
func (s *PanelService) CreatePanel(ctx context.Context, guildID, channelID, embedJSON string) (*domain.Panel, error) {
	panel := &domain.Panel{
		GuildID:   guildID,
		ChannelID: channelID,
		EmbedJSON: embedJSON,
	}
	if err := s.panels.Create(ctx, panel); err != nil {
		return nil, util.MapError(err)
	}
	if err := s.render(ctx, panel.ID); err != nil {
		return nil, err
	}
	return s.getPanel(ctx, panel.ID)
}

// AddButton appends a button trigger and re-renders the panel.
func (s *PanelService) AddButton(ctx context.Context, trigger *domain.Trigger) error {
	trigger.Kind = domain.TriggerKindButton
	if trigger.Label == "" {
		return util.NewConfigInvalid("button label is required")
	}
	if err := s.panels.AddButton(ctx, trigger); err != nil {
		return util.MapError(err)
	}
	return s.render(ctx, trigger.PanelID)
}

// AddSelectMenu appends an empty select menu to the panel.
func (s *PanelService) AddSelectMenu(ctx context.Context, menu *domain.SelectMenu) error {
	if err := s.panels.AddMenu(ctx, menu); err != nil {
		return util.MapError(err)
	}
	return s.render(ctx, menu.PanelID)
}

// AddSelectOption appends an option trigger to a menu and re-renders.
func (s *PanelService) AddSelectOption(ctx context.Context, trigger *domain.Trigger) error {
	trigger.Kind = domain.TriggerKindSelectOption
	if trigger.Label == "" {
		return util.NewConfigInvalid("option label is required")
	}
	if trigger.MenuID == nil {
		return util.NewConfigInvalid("option requires a menu")
	}
	if err := s.panels.AddOption(ctx, trigger); err != nil {
		return util.MapError(err)
	}
	return s.render(ctx, trigger.PanelID)
}

// UpdateTriggerSettings persists the typed update, then re-renders the
// panel layout from the reloaded trigger set so the displayed message
// never drifts from stored configuration.
func (s *PanelService) UpdateTriggerSettings(ctx context.Context, kind domain.TriggerKind, triggerID int64, update domain.TriggerUpdate) error {
	trigger, err := s.panels.GetTrigger(ctx, kind, triggerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return util.NewNotFound("trigger", nil)
		}
		return util.MapError(err)
	}
	if err := s.panels.UpdateTrigger(ctx, kind, triggerID, update); err != nil {
		return util.MapError(err)
	}
	return s.render(ctx, trigger.PanelID)
}

// DeletionConflict describes the tickets blocking (or affected by) a panel
// deletion, partitioned by activity.
type DeletionConflict struct {
	Active      []domain.Ticket
	SoftDeleted []domain.Ticket
}

// DeletePanel removes the panel and everything under it. Without force the
// deletion aborts with Conflict when active tickets still reference any of
// the panel's triggers; the partitions are attached for caller display.
// Forced (or reference-free) deletion first nulls every referencing
// ticket's trigger foreign key, active and soft-deleted alike, then
// cascade-deletes options, menus, buttons and the panel row in one
// transaction. The external panel message delete afterwards is best-effort.
func (s *PanelService) DeletePanel(ctx context.Context, panelID int64, forced bool) (*DeletionConflict, error) {
	panel, err := s.getPanel(ctx, panelID)
	if err != nil {
		return nil, err
	}

	buttonIDs, optionIDs, err := s.panels.TriggerIDs(ctx, panelID)
	if err != nil {
		return nil, util.MapError(err)
	}
	referencing, err := s.panels.ReferencingTickets(ctx, buttonIDs, optionIDs)
	if err != nil {
		return nil, util.MapError(err)
	}

	conflict := &DeletionConflict{}
	for _, ticket := range referencing {
		if ticket.Deleted {
			conflict.SoftDeleted = append(conflict.SoftDeleted, ticket)
		} else {
			conflict.Active = append(conflict.Active, ticket)
		}
	}

	if len(conflict.Active) > 0 && !forced {
		return conflict, util.NewConflict(
			fmt.Sprintf("Cannot delete panel: %d active tickets reference it", len(conflict.Active)),
			map[string]any{"active": len(conflict.Active), "soft_deleted": len(conflict.SoftDeleted)})
	}

	if err := s.panels.DetachAndDelete(ctx, panelID, buttonIDs, optionIDs); err != nil {
		return nil, util.MapError(err)
	}

	if panel.MessageID != "" {
		if err := s.client.DeleteMessage(ctx, panel.ChannelID, panel.MessageID); err != nil && !platform.IsNotFound(err) {
			s.logger.Warn("panel message delete failed",
				zap.Int64("panel_id", panelID),
				zap.String("message_id", panel.MessageID),
				zap.Error(err))
		}
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventPanelDeleted,
			GuildID:   panel.GuildID,
			Timestamp: time.Now().UTC(),
			Payload: events.PanelDeletedPayload{
				PanelID:  panelID,
				Forced:   forced,
				Detached: len(referencing),
			},
		})
	}
	s.logger.Info("panel deleted",
		zap.Int64("panel_id", panelID),
		zap.Bool("forced", forced),
		zap.Int("detached", len(referencing)))
	return conflict, nil
}

// render rebuilds the panel message from the full reloaded trigger set.
// When the stored message is gone a fresh one is published and the pointer
// updated.
func (s *PanelService) render(ctx context.Context, panelID int64) error {
	panel, err := s.getPanel(ctx, panelID)
	if err != nil {
		return err
	}

	msg := platform.Message{
		EmbedJSON:  panel.EmbedJSON,
		Components: buildComponentRows(panel),
	}

	if panel.MessageID != "" {
		err := s.client.EditMessage(ctx, panel.ChannelID, panel.MessageID, msg)
		if err == nil {
			return nil
		}
		if !platform.IsNotFound(err) {
			return util.NewPlatformFailure("edit panel message", err)
		}
	}

	messageID, err := s.client.SendMessage(ctx, panel.ChannelID, msg)
	if err != nil {
		return util.NewPlatformFailure("publish panel message", err)
	}
	if err := s.panels.SetMessage(ctx, panelID, panel.ChannelID, messageID); err != nil {
		return util.MapError(err)
	}
	return nil
}

func (s *PanelService) getPanel(ctx context.Context, panelID int64) (*domain.Panel, error) {
	panel, err := s.panels.GetByID(ctx, panelID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("panel", nil)
		}
		return nil, util.MapError(err)
	}
	return panel, nil
}

// buildComponentRows lays out buttons five per row, then one row per menu.
func buildComponentRows(panel *domain.Panel) []platform.ComponentRow {
	var rows []platform.ComponentRow
	for start := 0; start < len(panel.Buttons); start += maxButtonsPerRow {
		end := start + maxButtonsPerRow
		if end > len(panel.Buttons) {
			end = len(panel.Buttons)
		}
		row := platform.ComponentRow{}
		for _, trigger := range panel.Buttons[start:end] {
			row.Buttons = append(row.Buttons, platform.Button{
				CustomID: ButtonCustomID(trigger.ID),
				Label:    trigger.Label,
				Emoji:    trigger.Emoji,
				Style:    trigger.Style,
			})
		}
		rows = append(rows, row)
	}
	for _, menu := range panel.Menus {
		if len(menu.Options) == 0 {
			continue
		}
		row := platform.ComponentRow{Menu: &platform.SelectMenu{
			CustomID:    MenuCustomID(menu.ID),
			Placeholder: menu.Placeholder,
		}}
		for _, option := range menu.Options {
			row.Menu.Options = append(row.Menu.Options, platform.SelectOption{
				Value: OptionValue(option.ID),
				Label: option.Label,
				Emoji: option.Emoji,
			})
		}
		rows = append(rows, row)
	}
	return rows
}
