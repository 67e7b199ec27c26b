package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ticketforge/ticket-bot/internal/events"
	"github.com/ticketforge/ticket-bot/internal/platform"
	"github.com/ticketforge/ticket-bot/internal/repository"
)

// NotificationService turns lifecycle events into staff pings, member DMs
// and log-channel entries. Every send is best-effort: a platform outage
// here never disturbs the transition that emitted the event.
type NotificationService struct {
	dispatcher events.Dispatcher
	settings   repository.SettingsRepository
	client     platform.Client
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, settings repository.SettingsRepository, client platform.Client, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		settings:   settings,
		client:     client,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
	n.dispatcher.Subscribe(events.EventTicketArchived, n.handleTicketArchived)
	n.dispatcher.Subscribe(events.EventPanelDeleted, n.handlePanelDeleted)
	n.dispatcher.Subscribe(events.EventCaseClosed, n.handleCaseClosed)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	settings, err := n.settings.Get(ctx, event.GuildID)
	if err != nil {
		n.logger.Warn("settings lookup failed for notification", zap.String("guild_id", event.GuildID), zap.Error(err))
		return nil
	}

	if settings.NotifySupportRoles && len(payload.Trigger.SupportRoleIDs) > 0 {
		mentions := make([]string, 0, len(payload.Trigger.SupportRoleIDs))
		for _, roleID := range payload.Trigger.SupportRoleIDs {
			mentions = append(mentions, fmt.Sprintf("<@&%s>", roleID))
		}
		content := fmt.Sprintf("%s new ticket #%d", strings.Join(mentions, " "), payload.Ticket.ID)
		if _, err := n.client.SendMessage(ctx, payload.Ticket.ChannelID, platform.Message{Content: content}); err != nil {
			n.logger.Warn("support role ping failed", zap.Int64("ticket_id", payload.Ticket.ID), zap.Error(err))
		}
	}

	if settings.NotifyMembersDM {
		n.dmSupportMembers(ctx, event.GuildID, payload)
	}

	n.logChannel(ctx, settings.LogChannelID,
		fmt.Sprintf("Ticket #%d opened by <@%s> in <#%s>", payload.Ticket.ID, payload.Ticket.CreatorID, payload.Ticket.ChannelID))
	return nil
}

func (n *NotificationService) dmSupportMembers(ctx context.Context, guildID string, payload events.TicketCreatedPayload) {
	seen := map[string]struct{}{}
	for _, roleID := range payload.Trigger.SupportRoleIDs {
		members, err := n.client.RoleMembers(ctx, guildID, roleID)
		if err != nil {
			n.logger.Warn("role member lookup failed", zap.String("role_id", roleID), zap.Error(err))
			continue
		}
		for _, memberID := range members {
			if _, dup := seen[memberID]; dup {
				continue
			}
			seen[memberID] = struct{}{}
			msg := platform.Message{Content: fmt.Sprintf("New ticket #%d needs attention: <#%s>", payload.Ticket.ID, payload.Ticket.ChannelID)}
			if err := n.client.SendDirectMessage(ctx, memberID, msg); err != nil {
				n.logger.Warn("staff DM failed", zap.String("member_id", memberID), zap.Error(err))
			}
		}
	}
}

func (n *NotificationService) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClosedPayload)
	if !ok {
		return nil
	}
	settings, err := n.settings.Get(ctx, event.GuildID)
	if err != nil {
		return nil
	}
	entry := fmt.Sprintf("Ticket #%d closed by <@%s>", payload.Ticket.ID, event.ActorID)
	if payload.Deleting {
		entry += " (channel scheduled for deletion)"
	}
	n.logChannel(ctx, settings.LogChannelID, entry)
	return nil
}

func (n *NotificationService) handleTicketArchived(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketArchivedPayload)
	if !ok {
		return nil
	}
	settings, err := n.settings.Get(ctx, event.GuildID)
	if err != nil {
		return nil
	}
	n.logChannel(ctx, settings.LogChannelID, fmt.Sprintf("Ticket #%d archived", payload.TicketID))
	return nil
}

func (n *NotificationService) handlePanelDeleted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PanelDeletedPayload)
	if !ok {
		return nil
	}
	settings, err := n.settings.Get(ctx, event.GuildID)
	if err != nil {
		return nil
	}
	n.logChannel(ctx, settings.LogChannelID,
		fmt.Sprintf("Panel %d deleted (forced=%t, %d tickets detached)", payload.PanelID, payload.Forced, payload.Detached))
	return nil
}

func (n *NotificationService) handleCaseClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CaseClosedPayload)
	if !ok {
		return nil
	}
	settings, err := n.settings.Get(ctx, event.GuildID)
	if err != nil {
		return nil
	}
	entry := fmt.Sprintf("Case %s closed", payload.CaseID)
	if payload.Cascaded {
		entry += fmt.Sprintf(", %d tickets archived", len(payload.TicketIDs))
	}
	n.logChannel(ctx, settings.LogChannelID, entry)
	return nil
}

func (n *NotificationService) logChannel(ctx context.Context, channelID *string, content string) {
	if channelID == nil || *channelID == "" {
		return
	}
	if _, err := n.client.SendMessage(ctx, *channelID, platform.Message{Content: content}); err != nil {
		n.logger.Warn("log channel send failed", zap.String("channel_id", *channelID), zap.Error(err))
	}
}
