package events

import (
	"time"

	"github.com/ticketforge/ticket-bot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated  EventType = "ticket_created"
	EventTicketClaimed  EventType = "ticket_claimed"
	EventTicketClosed   EventType = "ticket_closed"
	EventTicketArchived EventType = "ticket_archived"
	EventPanelDeleted   EventType = "panel_deleted"
	EventCaseClosed     EventType = "case_closed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	GuildID   string      `json:"guild_id"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Ticket  domain.Ticket  `json:"ticket"`
	Trigger domain.Trigger `json:"trigger"`
}

// TicketClaimedPayload payload.
type TicketClaimedPayload struct {
	TicketID int64  `json:"ticket_id"`
	StaffID  string `json:"staff_id"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Ticket   domain.Ticket `json:"ticket"`
	Archived bool          `json:"archived"`
	Deleting bool          `json:"deleting"`
}

// TicketArchivedPayload payload.
type TicketArchivedPayload struct {
	TicketID  int64  `json:"ticket_id"`
	ChannelID string `json:"channel_id"`
}

// PanelDeletedPayload payload.
type PanelDeletedPayload struct {
	PanelID  int64 `json:"panel_id"`
	Forced   bool  `json:"forced"`
	Detached int   `json:"detached"`
}

// CaseClosedPayload payload.
type CaseClosedPayload struct {
	CaseID    string  `json:"case_id"`
	TicketIDs []int64 `json:"ticket_ids"`
	Cascaded  bool    `json:"cascaded"`
}
