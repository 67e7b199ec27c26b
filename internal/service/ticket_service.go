package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ticketforge/ticket-bot/internal/config"
	"github.com/ticketforge/ticket-bot/internal/domain"
	"github.com/ticketforge/ticket-bot/internal/events"
	"github.com/ticketforge/ticket-bot/internal/platform"
	"github.com/ticketforge/ticket-bot/internal/repository"
	"github.com/ticketforge/ticket-bot/pkg/util"
)

const (
	closedPrefix   = "closed-"
	archivedPrefix = "archived-"

	defaultOpeningMessage = "Hello %user%, thanks for opening a ticket. Support will be with you shortly."
)

// Component IDs on the ticket opening message.
const (
	ClaimCustomID = "ticket_claim"
	CloseCustomID = "ticket_close"
)

// TicketService drives the ticket lifecycle state machine.
type TicketService struct {
	tickets     repository.TicketRepository
	panels      repository.PanelRepository
	settings    repository.SettingsRepository
	catalog     repository.CatalogRepository
	deletions   repository.DeletionRepository
	client      platform.Client
	transcripts *TranscriptArchiver
	dispatcher  events.Dispatcher
	projector   PermissionProjector
	defaults    config.DefaultsConfig
	logger      *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	PanelRepo    repository.PanelRepository
	SettingsRepo repository.SettingsRepository
	CatalogRepo  repository.CatalogRepository
	DeletionRepo repository.DeletionRepository
	Client       platform.Client
	Transcripts  *TranscriptArchiver
	Dispatcher   events.Dispatcher
	Defaults     config.DefaultsConfig
	Logger       *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:     deps.TicketRepo,
		panels:      deps.PanelRepo,
		settings:    deps.SettingsRepo,
		catalog:     deps.CatalogRepo,
		deletions:   deps.DeletionRepo,
		client:      deps.Client,
		transcripts: deps.Transcripts,
		dispatcher:  deps.Dispatcher,
		defaults:    deps.Defaults,
		logger:      deps.Logger,
	}
}

// CreateInput describes a trigger activation.
type CreateInput struct {
	GuildID     string
	UserID      string
	Username    string
	TriggerKind domain.TriggerKind
	TriggerID   int64
	FormAnswers map[string]string
}

// Create opens a new ticket channel for the user.
func (s *TicketService) Create(ctx context.Context, input CreateInput) (*domain.Ticket, error) {
	settings, err := s.settings.Get(ctx, input.GuildID)
	if err != nil {
		return nil, util.MapError(err)
	}
	if settings.Blacklisted(input.UserID) {
		return nil, util.NewUnauthorized("you are not allowed to open tickets in this server")
	}

	trigger, err := s.panels.GetTrigger(ctx, input.TriggerKind, input.TriggerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("trigger", nil)
		}
		return nil, util.MapError(err)
	}

	ceiling := s.defaults.MaxActiveTickets
	if ceiling <= 0 {
		ceiling = 1
	}
	if trigger.MaxActiveTickets != nil {
		ceiling = *trigger.MaxActiveTickets
	}
	active, err := s.tickets.CountActiveForTrigger(ctx, input.UserID, trigger.Kind, trigger.ID)
	if err != nil {
		return nil, util.MapError(err)
	}
	if active >= ceiling {
		return nil, util.NewLimitExceeded(
			fmt.Sprintf("you already have %d open ticket(s) for this option", active),
			map[string]any{"limit": ceiling})
	}

	sequence, err := s.tickets.NextSequence(ctx, input.GuildID)
	if err != nil {
		return nil, util.MapError(err)
	}
	name := renderChannelName(trigger.ChannelNameFormat, input.Username, sequence)

	overlays := s.projector.Baseline(input.GuildID, s.client.BotUserID(), input.UserID, trigger)
	create := platform.ChannelCreate{
		Name:     name,
		Topic:    fmt.Sprintf("Ticket for %s", input.Username),
		Overlays: overlays,
	}
	if trigger.CategoryID != nil {
		create.ParentID = *trigger.CategoryID
	}
	channelID, err := s.client.CreateChannel(ctx, input.GuildID, create)
	if err != nil {
		return nil, util.NewPlatformFailure("create ticket channel", err)
	}

	ticket := &domain.Ticket{
		GuildID:     input.GuildID,
		ChannelID:   channelID,
		CreatorID:   input.UserID,
		CreatorName: input.Username,
		PriorityID:  trigger.DefaultPriorityID,
		FormAnswers: input.FormAnswers,
	}
	if trigger.Kind == domain.TriggerKindButton {
		ticket.ButtonID = &trigger.ID
	} else {
		ticket.SelectOptionID = &trigger.ID
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		s.compensateCreate(ctx, channelID, 0)
		return nil, util.MapError(err)
	}

	// sends after this point are best-effort: the ticket row is authoritative
	opening := defaultOpeningMessage
	if trigger.OpeningMessage != nil && *trigger.OpeningMessage != "" {
		opening = *trigger.OpeningMessage
	}
	opening = substitutePlaceholders(opening, input.UserID, input.Username, sequence)
	openingMsg := platform.Message{
		Content: opening,
		Components: []platform.ComponentRow{{
			Buttons: []platform.Button{
				{CustomID: ClaimCustomID, Label: "Claim", Style: 2},
				{CustomID: CloseCustomID, Label: "Close", Style: 4},
			},
		}},
	}
	if _, err := s.client.SendMessage(ctx, channelID, openingMsg); err != nil {
		s.logger.Warn("opening message send failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
	}
	if echo := renderFormAnswers(input.FormAnswers); echo != "" {
		if _, err := s.client.SendMessage(ctx, channelID, platform.Message{Content: echo}); err != nil {
			s.logger.Warn("answers echo send failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	s.publish(ctx, events.EventTicketCreated, ticket.GuildID, input.UserID, events.TicketCreatedPayload{
		Ticket:  *ticket,
		Trigger: *trigger,
	})

	s.logger.Info("ticket created",
		zap.Int64("ticket_id", ticket.ID),
		zap.String("guild_id", ticket.GuildID),
		zap.String("channel_id", channelID),
		zap.String("creator_id", input.UserID))
	return ticket, nil
}

// compensateCreate tears down a half-created ticket. Failures here are
// logged and never re-raised.
func (s *TicketService) compensateCreate(ctx context.Context, channelID string, ticketID int64) {
	if err := s.client.DeleteChannel(ctx, channelID); err != nil && !platform.IsNotFound(err) {
		s.logger.Error("compensating channel delete failed", zap.String("channel_id", channelID), zap.Error(err))
	}
	if ticketID != 0 {
		if err := s.tickets.HardDelete(ctx, ticketID); err != nil {
			s.logger.Error("compensating row delete failed", zap.Int64("ticket_id", ticketID), zap.Error(err))
		}
	}
}

// Claim assigns the ticket to a staff member. Only one concurrent claim
// wins; the rest fail with AlreadyInState.
func (s *TicketService) Claim(ctx context.Context, ticketID int64, staffID string) error {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.State() != domain.TicketStateOpen {
		return util.NewAlreadyInState(fmt.Sprintf("ticket is %s", strings.ToLower(string(ticket.State()))))
	}
	if err := s.requireSupport(ctx, ticket, staffID); err != nil {
		return err
	}

	won, err := s.tickets.Claim(ctx, ticketID, staffID)
	if err != nil {
		return util.MapError(err)
	}
	if !won {
		return util.NewAlreadyInState("ticket is already claimed")
	}

	s.publish(ctx, events.EventTicketClaimed, ticket.GuildID, staffID, events.TicketClaimedPayload{
		TicketID: ticketID,
		StaffID:  staffID,
	})
	return nil
}

// Unclaim releases a claimed ticket. Only the holder or an admin may do so.
func (s *TicketService) Unclaim(ctx context.Context, ticketID int64, staffID string) error {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.State() != domain.TicketStateClaimed {
		return util.NewAlreadyInState("ticket is not claimed")
	}
	if *ticket.ClaimedBy != staffID {
		admin, err := s.client.IsAdmin(ctx, ticket.GuildID, staffID)
		if err != nil {
			return util.NewPlatformFailure("check admin", err)
		}
		if !admin {
			return util.NewUnauthorized("only the claim holder or an admin can release this ticket")
		}
	}
	return util.MapError(s.tickets.Unclaim(ctx, ticketID))
}

// Close transitions an open or claimed ticket to Closed, applying the
// resolved close behavior or cascading straight into Archive.
func (s *TicketService) Close(ctx context.Context, ticketID int64, closerID string, forceArchive bool) error {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.Closed || ticket.Deleted {
		return util.NewAlreadyInState("ticket is already closed")
	}

	trigger := s.triggerOf(ctx, ticket)

	if trigger != nil && trigger.SaveTranscript {
		if _, err := s.transcripts.Archive(ctx, ticket); err != nil {
			s.logger.Warn("transcript archive failed on close", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	now := time.Now().UTC()
	if err := s.tickets.MarkClosed(ctx, ticketID, now); err != nil {
		return util.MapError(err)
	}
	ticket.Closed = true
	ticket.ClosedAt = &now

	if forceArchive || (trigger != nil && trigger.AutoArchiveOnClose) {
		s.publish(ctx, events.EventTicketClosed, ticket.GuildID, closerID, events.TicketClosedPayload{
			Ticket:   *ticket,
			Archived: true,
		})
		return s.archive(ctx, ticket, trigger, closerID)
	}

	settings, err := s.settings.Get(ctx, ticket.GuildID)
	if err != nil {
		return util.MapError(err)
	}
	var triggerBehavior *domain.CloseBehavior
	if trigger != nil {
		triggerBehavior = &trigger.CloseBehavior
	}
	behavior := resolveCloseBehavior(triggerBehavior, settings.CloseBehavior, s.defaults.DeleteDelay())

	// fixed order: rename, remove creator, lock, move; delete supersedes
	// lock and move
	if behavior.Rename {
		s.renameWithPrefix(ctx, ticket, closedPrefix)
	}
	if behavior.RemoveCreator {
		if err := s.client.RemoveOverlay(ctx, ticket.ChannelID, ticket.CreatorID); err != nil {
			s.logger.Warn("remove creator overlay failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	if behavior.Lock && !behavior.Delete {
		overlays := s.projector.Locked(ticket.GuildID, s.client.BotUserID(), ticket.CreatorID, trigger, behavior.RemoveCreator)
		if err := s.client.SetOverlays(ctx, ticket.ChannelID, overlays); err != nil {
			s.logger.Warn("lock overlays failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	if !behavior.Delete && trigger != nil && trigger.ArchiveCategoryID != nil {
		if err := s.client.MoveChannel(ctx, ticket.ChannelID, *trigger.ArchiveCategoryID); err != nil {
			s.logger.Warn("archive category move failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	deleting := false
	if behavior.Delete {
		warning := fmt.Sprintf("This channel will be deleted in %s.", behavior.DeleteDelay)
		if _, err := s.client.SendMessage(ctx, ticket.ChannelID, platform.Message{Content: warning}); err != nil {
			s.logger.Warn("deletion warning send failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		}
		deletion := &domain.ScheduledDeletion{
			ID:        uuid.NewString(),
			TicketID:  ticket.ID,
			GuildID:   ticket.GuildID,
			ChannelID: ticket.ChannelID,
			ExecuteAt: now.Add(behavior.DeleteDelay),
		}
		if err := s.deletions.Schedule(ctx, deletion); err != nil {
			return util.MapError(err)
		}
		deleting = true
	}

	s.publish(ctx, events.EventTicketClosed, ticket.GuildID, closerID, events.TicketClosedPayload{
		Ticket:   *ticket,
		Deleting: deleting,
	})
	s.logger.Info("ticket closed",
		zap.Int64("ticket_id", ticket.ID),
		zap.Bool("deleting", deleting),
		zap.String("closed_by", closerID))
	return nil
}

// Archive moves a closed ticket into its archive category and flags it.
func (s *TicketService) Archive(ctx context.Context, ticketID int64, actorID string) error {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.Archived || ticket.Deleted {
		return util.NewAlreadyInState("ticket is already archived")
	}
	return s.archive(ctx, ticket, s.triggerOf(ctx, ticket), actorID)
}

func (s *TicketService) archive(ctx context.Context, ticket *domain.Ticket, trigger *domain.Trigger, actorID string) error {
	if trigger != nil && trigger.ArchiveCategoryID != nil {
		if err := s.client.MoveChannel(ctx, ticket.ChannelID, *trigger.ArchiveCategoryID); err != nil {
			s.logger.Warn("archive category move failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	if ticket.Transcript == nil {
		if _, err := s.transcripts.Archive(ctx, ticket); err != nil {
			s.logger.Warn("transcript archive failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	s.renameWithPrefix(ctx, ticket, archivedPrefix)

	overlays := s.projector.Locked(ticket.GuildID, s.client.BotUserID(), ticket.CreatorID, trigger, false)
	if err := s.client.SetOverlays(ctx, ticket.ChannelID, overlays); err != nil {
		s.logger.Warn("archive lock failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
	}

	now := time.Now().UTC()
	if err := s.tickets.MarkArchived(ctx, ticket.ID, now); err != nil {
		return util.MapError(err)
	}
	ticket.Archived = true
	ticket.ArchivedAt = &now

	s.publish(ctx, events.EventTicketArchived, ticket.GuildID, actorID, events.TicketArchivedPayload{
		TicketID:  ticket.ID,
		ChannelID: ticket.ChannelID,
	})
	return nil
}

// Reopen returns a closed (not deleted) ticket to Open, cancelling any
// pending deletion.
func (s *TicketService) Reopen(ctx context.Context, ticketID int64, staffID string) error {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.Deleted {
		return util.NewAlreadyInState("ticket has been deleted")
	}
	if !ticket.Closed {
		return util.NewAlreadyInState("ticket is not closed")
	}
	if err := s.requireSupport(ctx, ticket, staffID); err != nil {
		return err
	}

	if err := s.deletions.CancelForTicket(ctx, ticketID); err != nil {
		return util.MapError(err)
	}
	if err := s.tickets.Reopen(ctx, ticketID); err != nil {
		return util.MapError(err)
	}

	trigger := s.triggerOf(ctx, ticket)
	overlays := s.projector.Baseline(ticket.GuildID, s.client.BotUserID(), ticket.CreatorID, trigger)
	if err := s.client.SetOverlays(ctx, ticket.ChannelID, overlays); err != nil {
		s.logger.Warn("reopen overlays failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
	}
	name, err := s.client.ChannelName(ctx, ticket.ChannelID)
	if err == nil {
		restored := strings.TrimPrefix(strings.TrimPrefix(name, archivedPrefix), closedPrefix)
		if restored != name {
			if err := s.client.RenameChannel(ctx, ticket.ChannelID, restored); err != nil {
				s.logger.Warn("reopen rename failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
			}
		}
	}
	return nil
}

// SetPriority assigns a priority, validated against the trigger's allowed
// set when one is configured.
func (s *TicketService) SetPriority(ctx context.Context, ticketID int64, staffID string, priorityID int64) error {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := s.requireSupport(ctx, ticket, staffID); err != nil {
		return err
	}
	priority, err := s.catalog.GetPriority(ctx, priorityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return util.NewNotFound("priority", nil)
		}
		return util.MapError(err)
	}
	if priority.GuildID != ticket.GuildID {
		return util.NewNotFound("priority", nil)
	}
	if trigger := s.triggerOf(ctx, ticket); trigger != nil && len(trigger.AllowedPriorityIDs) > 0 {
		allowed := false
		for _, id := range trigger.AllowedPriorityIDs {
			if id == priorityID {
				allowed = true
				break
			}
		}
		if !allowed {
			return util.NewConflict("priority is not allowed for this ticket", nil)
		}
	}
	return util.MapError(s.tickets.SetPriority(ctx, ticketID, priorityID))
}

// AddTag attaches a guild tag to the ticket.
func (s *TicketService) AddTag(ctx context.Context, ticketID int64, staffID string, tagID int64) error {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := s.requireSupport(ctx, ticket, staffID); err != nil {
		return err
	}
	tag, err := s.catalog.GetTag(ctx, tagID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return util.NewNotFound("tag", nil)
		}
		return util.MapError(err)
	}
	if tag.GuildID != ticket.GuildID {
		return util.NewNotFound("tag", nil)
	}
	return util.MapError(s.tickets.AddTag(ctx, ticketID, tagID))
}

// RemoveTag detaches a tag from the ticket.
func (s *TicketService) RemoveTag(ctx context.Context, ticketID int64, staffID string, tagID int64) error {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := s.requireSupport(ctx, ticket, staffID); err != nil {
		return err
	}
	return util.MapError(s.tickets.RemoveTag(ctx, ticketID, tagID))
}

// AddNote posts a staff note into the ticket channel and bumps activity.
func (s *TicketService) AddNote(ctx context.Context, ticketID int64, staffID, body string) error {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := s.requireSupport(ctx, ticket, staffID); err != nil {
		return err
	}
	note := fmt.Sprintf("**Note from <@%s>:** %s", staffID, body)
	if _, err := s.client.SendMessage(ctx, ticket.ChannelID, platform.Message{Content: note}); err != nil {
		return util.NewPlatformFailure("send note", err)
	}
	return util.MapError(s.tickets.Touch(ctx, ticketID, time.Now().UTC()))
}

// GetByChannel resolves the ticket bound to a channel.
func (s *TicketService) GetByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("ticket", nil)
		}
		return nil, util.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) getTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("ticket", nil)
		}
		return nil, util.MapError(err)
	}
	return ticket, nil
}

// triggerOf loads the ticket's trigger, or nil when the reference has been
// detached by a panel deletion.
func (s *TicketService) triggerOf(ctx context.Context, ticket *domain.Ticket) *domain.Trigger {
	id, kind, ok := ticket.TriggerRef()
	if !ok {
		return nil
	}
	trigger, err := s.panels.GetTrigger(ctx, kind, id)
	if err != nil {
		s.logger.Warn("trigger lookup failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		return nil
	}
	return trigger
}

// requireSupport checks the actor is in the trigger's support roles or a
// guild admin.
func (s *TicketService) requireSupport(ctx context.Context, ticket *domain.Ticket, staffID string) error {
	trigger := s.triggerOf(ctx, ticket)
	if trigger != nil && len(trigger.SupportRoleIDs) > 0 {
		roles, err := s.client.MemberRoles(ctx, ticket.GuildID, staffID)
		if err != nil {
			return util.NewPlatformFailure("fetch member roles", err)
		}
		held := make(map[string]struct{}, len(roles))
		for _, id := range roles {
			held[id] = struct{}{}
		}
		for _, id := range trigger.SupportRoleIDs {
			if _, ok := held[id]; ok {
				return nil
			}
		}
	}
	admin, err := s.client.IsAdmin(ctx, ticket.GuildID, staffID)
	if err != nil {
		return util.NewPlatformFailure("check admin", err)
	}
	if !admin {
		return util.NewUnauthorized("you are not part of the support team for this ticket")
	}
	return nil
}

func (s *TicketService) renameWithPrefix(ctx context.Context, ticket *domain.Ticket, prefix string) {
	name, err := s.client.ChannelName(ctx, ticket.ChannelID)
	if err != nil {
		s.logger.Warn("channel name fetch failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	base := strings.TrimPrefix(strings.TrimPrefix(name, archivedPrefix), closedPrefix)
	renamed := prefix + base
	if renamed == name {
		return
	}
	if err := s.client.RenameChannel(ctx, ticket.ChannelID, renamed); err != nil {
		s.logger.Warn("channel rename failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
	}
}

func (s *TicketService) publish(ctx context.Context, eventType events.EventType, guildID, actorID string, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		GuildID:   guildID,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

// renderChannelName substitutes %username% and %sequence% into the
// configured format and normalizes the result for the platform.
func renderChannelName(format, username string, sequence int64) string {
	if format == "" {
		format = "ticket-%sequence%"
	}
	name := strings.ReplaceAll(format, "%username%", username)
	name = strings.ReplaceAll(name, "%sequence%", fmt.Sprintf("%d", sequence))
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "-")
	if len(name) > 100 {
		name = name[:100]
	}
	return name
}

func substitutePlaceholders(text, userID, username string, sequence int64) string {
	text = strings.ReplaceAll(text, "%user%", fmt.Sprintf("<@%s>", userID))
	text = strings.ReplaceAll(text, "%username%", username)
	text = strings.ReplaceAll(text, "%sequence%", fmt.Sprintf("%d", sequence))
	return text
}

// renderFormAnswers echoes captured intake answers in a stable order.
func renderFormAnswers(answers map[string]string) string {
	if len(answers) == 0 {
		return ""
	}
	keys := make([]string, 0, len(answers))
	for key := range answers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&b, "**%s**\n%s\n", key, answers[key])
	}
	return strings.TrimSpace(b.String())
}
