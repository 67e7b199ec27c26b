package domain

import "time"

// TicketState enumerates lifecycle states for tickets.
type TicketState string

const (
	TicketStateOpen            TicketState = "OPEN"
	TicketStateClaimed         TicketState = "CLAIMED"
	TicketStateClosed          TicketState = "CLOSED"
	TicketStateArchived        TicketState = "ARCHIVED"
	TicketStatePendingDeletion TicketState = "PENDING_DELETION"
	TicketStateDeleted         TicketState = "DELETED"
)

// Ticket is the aggregate for a private support channel instance.
//
// Exactly one of ButtonID / SelectOptionID is set: a ticket always knows
// which trigger spawned it, and never claims both variants.
type Ticket struct {
	ID             int64
	GuildID        string
	ChannelID      string
	CreatorID      string
	CreatorName    string
	ButtonID       *int64
	SelectOptionID *int64
	CaseID         *string
	PriorityID     *int64
	TagIDs         []int64
	ClaimedBy      *string
	Transcript     *string
	FormAnswers    map[string]string
	Closed         bool
	Archived       bool
	Deleted        bool
	CreatedAt      time.Time
	LastActivityAt time.Time
	ClosedAt       *time.Time
	ArchivedAt     *time.Time
	DeletedAt      *time.Time
}

// State derives the lifecycle state from the persisted flags.
func (t *Ticket) State() TicketState {
	switch {
	case t.Deleted:
		return TicketStateDeleted
	case t.Archived:
		return TicketStateArchived
	case t.Closed:
		return TicketStateClosed
	case t.ClaimedBy != nil:
		return TicketStateClaimed
	default:
		return TicketStateOpen
	}
}

// Active reports whether the ticket still counts against per-user ceilings.
func (t *Ticket) Active() bool {
	return !t.Closed && !t.Deleted
}

// TriggerRef returns the id of the trigger the ticket references and which
// variant it is. ok is false when the reference has been detached.
func (t *Ticket) TriggerRef() (id int64, variant TriggerKind, ok bool) {
	if t.ButtonID != nil {
		return *t.ButtonID, TriggerKindButton, true
	}
	if t.SelectOptionID != nil {
		return *t.SelectOptionID, TriggerKindSelectOption, true
	}
	return 0, "", false
}
