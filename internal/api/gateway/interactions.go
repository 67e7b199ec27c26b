package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/ticketforge/ticket-bot/internal/domain"
	"github.com/ticketforge/ticket-bot/internal/service"
	"github.com/ticketforge/ticket-bot/pkg/util"
)

const interactionTimeout = 15 * time.Second

// InteractionHandler routes gateway interactions (panel components and
// staff slash commands) to the services.
type InteractionHandler struct {
	tickets *service.TicketService
	cases   *service.CaseService
	logger  *zap.Logger
}

// NewInteractionHandler wires the handler.
func NewInteractionHandler(tickets *service.TicketService, cases *service.CaseService, logger *zap.Logger) *InteractionHandler {
	return &InteractionHandler{tickets: tickets, cases: cases, logger: logger}
}

// Register attaches the handler to the session. Call before Open.
func (h *InteractionHandler) Register(session *discordgo.Session) {
	session.AddHandler(h.handle)
}

func (h *InteractionHandler) handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	switch i.Type {
	case discordgo.InteractionMessageComponent:
		h.handleComponent(ctx, s, i)
	case discordgo.InteractionApplicationCommand:
		h.handleCommand(ctx, s, i)
	}
}

func (h *InteractionHandler) handleComponent(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	userID, username := interactionUser(i)

	switch {
	case strings.HasPrefix(data.CustomID, "ticket_button_"):
		id, err := trailingID(data.CustomID, "ticket_button_")
		if err != nil {
			h.logger.Warn("malformed component id", zap.String("custom_id", data.CustomID))
			return
		}
		h.openTicket(ctx, s, i, domain.TriggerKindButton, id, userID, username)

	case strings.HasPrefix(data.CustomID, "ticket_menu_"):
		if len(data.Values) == 0 {
			return
		}
		id, err := trailingID(data.Values[0], "ticket_option_")
		if err != nil {
			h.logger.Warn("malformed option value", zap.String("value", data.Values[0]))
			return
		}
		h.openTicket(ctx, s, i, domain.TriggerKindSelectOption, id, userID, username)

	case data.CustomID == service.ClaimCustomID:
		h.withChannelTicket(ctx, s, i, func(ticket *domain.Ticket) (string, error) {
			if err := h.tickets.Claim(ctx, ticket.ID, userID); err != nil {
				return "", err
			}
			return fmt.Sprintf("Ticket claimed by <@%s>.", userID), nil
		})

	case data.CustomID == service.CloseCustomID:
		h.withChannelTicket(ctx, s, i, func(ticket *domain.Ticket) (string, error) {
			if err := h.tickets.Close(ctx, ticket.ID, userID, false); err != nil {
				return "", err
			}
			return "Ticket closed.", nil
		})
	}
}

func (h *InteractionHandler) openTicket(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, kind domain.TriggerKind, triggerID int64, userID, username string) {
	ticket, err := h.tickets.Create(ctx, service.CreateInput{
		GuildID:     i.GuildID,
		UserID:      userID,
		Username:    username,
		TriggerKind: kind,
		TriggerID:   triggerID,
	})
	if err != nil {
		h.respondError(s, i, err)
		return
	}
	h.respond(s, i, fmt.Sprintf("Your ticket is ready: <#%s>", ticket.ChannelID))
}

func (h *InteractionHandler) handleCommand(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	userID, _ := interactionUser(i)

	if data.Name == "case" {
		h.handleCaseCommand(ctx, s, i, data, userID)
		return
	}

	h.withChannelTicket(ctx, s, i, func(ticket *domain.Ticket) (string, error) {
		switch data.Name {
		case "claim":
			if err := h.tickets.Claim(ctx, ticket.ID, userID); err != nil {
				return "", err
			}
			return fmt.Sprintf("Ticket claimed by <@%s>.", userID), nil
		case "unclaim":
			if err := h.tickets.Unclaim(ctx, ticket.ID, userID); err != nil {
				return "", err
			}
			return "Ticket released.", nil
		case "close":
			archive := boolOption(data.Options, "archive")
			if err := h.tickets.Close(ctx, ticket.ID, userID, archive); err != nil {
				return "", err
			}
			return "Ticket closed.", nil
		case "archive":
			if err := h.tickets.Archive(ctx, ticket.ID, userID); err != nil {
				return "", err
			}
			return "Ticket archived.", nil
		case "reopen":
			if err := h.tickets.Reopen(ctx, ticket.ID, userID); err != nil {
				return "", err
			}
			return "Ticket reopened.", nil
		case "priority":
			id := intOption(data.Options, "id")
			if err := h.tickets.SetPriority(ctx, ticket.ID, userID, id); err != nil {
				return "", err
			}
			return "Priority updated.", nil
		case "tag":
			id := intOption(data.Options, "id")
			if err := h.tickets.AddTag(ctx, ticket.ID, userID, id); err != nil {
				return "", err
			}
			return "Tag added.", nil
		case "untag":
			id := intOption(data.Options, "id")
			if err := h.tickets.RemoveTag(ctx, ticket.ID, userID, id); err != nil {
				return "", err
			}
			return "Tag removed.", nil
		case "note":
			body := stringOption(data.Options, "body")
			if err := h.tickets.AddNote(ctx, ticket.ID, userID, body); err != nil {
				return "", err
			}
			return "Note recorded.", nil
		}
		return "", util.NewNotFound("command", nil)
	})
}

func (h *InteractionHandler) handleCaseCommand(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData, userID string) {
	if len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]
	opts := sub.Options

	run := func() (string, error) {
		switch sub.Name {
		case "create":
			c, err := h.cases.CreateCase(ctx, i.GuildID, userID, stringOption(opts, "title"), stringOption(opts, "description"), nil)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Case `%s` created.", c.ID), nil
		case "link":
			ticket, err := h.tickets.GetByChannel(ctx, i.ChannelID)
			if err != nil {
				return "", err
			}
			if err := h.cases.LinkTicket(ctx, stringOption(opts, "case_id"), ticket.ID); err != nil {
				return "", err
			}
			return "Ticket linked to case.", nil
		case "unlink":
			ticket, err := h.tickets.GetByChannel(ctx, i.ChannelID)
			if err != nil {
				return "", err
			}
			if err := h.cases.UnlinkTicket(ctx, stringOption(opts, "case_id"), ticket.ID); err != nil {
				return "", err
			}
			return "Ticket unlinked from case.", nil
		case "close":
			closed, err := h.cases.CloseCase(ctx, stringOption(opts, "case_id"), userID, boolOption(opts, "archive"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Case closed; %d linked ticket(s) closed with it.", len(closed)), nil
		case "reopen":
			if err := h.cases.ReopenCase(ctx, stringOption(opts, "case_id")); err != nil {
				return "", err
			}
			return "Case reopened.", nil
		case "note":
			if _, err := h.cases.AddNote(ctx, stringOption(opts, "case_id"), userID, stringOption(opts, "body")); err != nil {
				return "", err
			}
			return "Note added to case.", nil
		}
		return "", util.NewNotFound("subcommand", nil)
	}

	msg, err := run()
	if err != nil {
		h.respondError(s, i, err)
		return
	}
	h.respond(s, i, msg)
}

// withChannelTicket resolves the ticket bound to the interaction's channel
// and runs the action, replying with either its message or the error.
func (h *InteractionHandler) withChannelTicket(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, action func(*domain.Ticket) (string, error)) {
	ticket, err := h.tickets.GetByChannel(ctx, i.ChannelID)
	if err != nil {
		h.respondError(s, i, err)
		return
	}
	msg, err := action(ticket)
	if err != nil {
		h.respondError(s, i, err)
		return
	}
	h.respond(s, i, msg)
}

func (h *InteractionHandler) respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		h.logger.Warn("interaction response failed", zap.Error(err))
	}
}

func (h *InteractionHandler) respondError(s *discordgo.Session, i *discordgo.InteractionCreate, err error) {
	domainErr := util.ToDomainError(err)
	if domainErr.HTTPStatus >= 500 {
		h.logger.Error("interaction failed", zap.String("code", domainErr.Code), zap.Error(err))
	}
	h.respond(s, i, domainErr.Message)
}

func interactionUser(i *discordgo.InteractionCreate) (id, username string) {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID, i.Member.User.Username
	}
	if i.User != nil {
		return i.User.ID, i.User.Username
	}
	return "", ""
}

func trailingID(value, prefix string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(value, prefix), 10, 64)
}

func stringOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name {
			return o.StringValue()
		}
	}
	return ""
}

func intOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) int64 {
	for _, o := range opts {
		if o.Name == name {
			return o.IntValue()
		}
	}
	return 0
}

func boolOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) bool {
	for _, o := range opts {
		if o.Name == name {
			return o.BoolValue()
		}
	}
	return false
}
