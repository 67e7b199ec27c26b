package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/ticketforge/ticket-bot/internal/domain"
	"github.com/ticketforge/ticket-bot/internal/platform"
	"github.com/ticketforge/ticket-bot/internal/repository"
	"github.com/ticketforge/ticket-bot/pkg/util"
)

// TranscriptDocument is the portable record of a ticket's message history.
type TranscriptDocument struct {
	TicketID    int64                     `json:"ticket_id"`
	GuildID     string                    `json:"guild_id"`
	ChannelID   string                    `json:"channel_id"`
	CreatorID   string                    `json:"creator_id"`
	CreatorName string                    `json:"creator_name"`
	FormAnswers map[string]string         `json:"form_answers,omitempty"`
	Messages    []platform.HistoryMessage `json:"messages"`
}

// TranscriptArchiver renders a ticket's full history to a document and
// uploads it to the guild's transcript channel, recording the pointer.
type TranscriptArchiver struct {
	tickets  repository.TicketRepository
	settings repository.SettingsRepository
	client   platform.Client
	logger   *zap.Logger
}

// NewTranscriptArchiver constructs the archiver.
func NewTranscriptArchiver(tickets repository.TicketRepository, settings repository.SettingsRepository, client platform.Client, logger *zap.Logger) *TranscriptArchiver {
	return &TranscriptArchiver{tickets: tickets, settings: settings, client: client, logger: logger}
}

// Archive renders and uploads the ticket transcript. Idempotent: a ticket
// with a recorded pointer is returned as-is.
func (a *TranscriptArchiver) Archive(ctx context.Context, ticket *domain.Ticket) (string, error) {
	if ticket.Transcript != nil {
		return *ticket.Transcript, nil
	}

	settings, err := a.settings.Get(ctx, ticket.GuildID)
	if err != nil {
		return "", err
	}
	if settings.TranscriptChannelID == nil {
		return "", util.NewConfigInvalid("no transcript channel configured for guild")
	}

	history, err := a.client.ChannelHistory(ctx, ticket.ChannelID)
	if err != nil {
		return "", util.NewPlatformFailure("fetch channel history", err)
	}

	doc := TranscriptDocument{
		TicketID:    ticket.ID,
		GuildID:     ticket.GuildID,
		ChannelID:   ticket.ChannelID,
		CreatorID:   ticket.CreatorID,
		CreatorName: ticket.CreatorName,
		FormAnswers: ticket.FormAnswers,
		Messages:    history,
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("transcript-%d.json", ticket.ID)
	note := fmt.Sprintf("Transcript for ticket #%d", ticket.ID)
	messageID, err := a.client.UploadFile(ctx, *settings.TranscriptChannelID, filename, raw, note)
	if err != nil {
		return "", util.NewPlatformFailure("upload transcript", err)
	}

	pointer := fmt.Sprintf("%s/%s", *settings.TranscriptChannelID, messageID)
	if err := a.tickets.SetTranscript(ctx, ticket.ID, pointer); err != nil {
		return "", err
	}
	ticket.Transcript = &pointer
	a.logger.Info("transcript archived",
		zap.Int64("ticket_id", ticket.ID),
		zap.String("pointer", pointer),
		zap.Int("messages", len(history)))
	return pointer, nil
}
