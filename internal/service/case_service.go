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

// CaseService groups tickets into investigative cases with their own
// close/reopen/notes lifecycle, composed over the ticket lifecycle.
type CaseService struct {
	cases      repository.CaseRepository
	tickets    repository.TicketRepository
	panels     repository.PanelRepository
	client     platform.Client
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// CaseDependencies bundles collaborators for the case service.
type CaseDependencies struct {
	CaseRepo   repository.CaseRepository
	TicketRepo repository.TicketRepository
	PanelRepo  repository.PanelRepository
	Client     platform.Client
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewCaseService constructs the service.
func NewCaseService(deps CaseDependencies) *CaseService {
	return &CaseService{
		cases:      deps.CaseRepo,
		tickets:    deps.TicketRepo,
		panels:     deps.PanelRepo,
		client:     deps.Client,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// CreateCase inserts the case and links any initial tickets in the same
// transaction.
func (s *CaseService) CreateCase(ctx context.Context, guildID, creatorID, title, description string, initialTicketIDs []int64) (*domain.Case, error) {
	if title == "" {
		return nil, util.NewConfigInvalid("case title is required")
	}
	c := &domain.Case{
		ID:          uuid.NewString(),
		GuildID:     guildID,
		Title:       title,
		Description: description,
		CreatorID:   creatorID,
	}
	if err := s.cases.Create(ctx, c, initialTicketIDs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("ticket", nil)
		}
		return nil, util.MapError(err)
	}
	s.logger.Info("case created",
		zap.String("case_id", c.ID),
		zap.String("guild_id", guildID),
		zap.Int("initial_tickets", len(initialTicketIDs)))
	return c, nil
}

// LinkTicket attaches a ticket to the case.
func (s *CaseService) LinkTicket(ctx context.Context, caseID string, ticketID int64) error {
	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return err
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return util.NewNotFound("ticket", nil)
		}
		return util.MapError(err)
	}
	if ticket.GuildID != c.GuildID {
		return util.NewNotFound("ticket", nil)
	}
	return util.MapError(s.cases.LinkTicket(ctx, caseID, ticketID))
}

// UnlinkTicket detaches a ticket from the case.
func (s *CaseService) UnlinkTicket(ctx context.Context, caseID string, ticketID int64) error {
	if _, err := s.getCase(ctx, caseID); err != nil {
		return err
	}
	if err := s.cases.UnlinkTicket(ctx, caseID, ticketID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return util.NewNotFound("ticket", nil)
		}
		return util.MapError(err)
	}
	return nil
}

// AddNote appends a note to the case.
func (s *CaseService) AddNote(ctx context.Context, caseID, authorID, body string) (*domain.CaseNote, error) {
	if _, err := s.getCase(ctx, caseID); err != nil {
		return nil, err
	}
	if body == "" {
		return nil, util.NewConfigInvalid("note body is required")
	}
	note := &domain.CaseNote{
		ID:       uuid.NewString(),
		CaseID:   caseID,
		AuthorID: authorID,
		Body:     body,
	}
	if err := s.cases.AddNote(ctx, note); err != nil {
		return nil, util.MapError(err)
	}
	return note, nil
}

// CloseCase flips the closed timestamp. With cascadeArchive the still-open
// linked tickets are archived in the same transaction: each ticket's
// archive category is resolved through its own trigger and the external
// move performed per ticket; any failure rolls the whole close back.
func (s *CaseService) CloseCase(ctx context.Context, caseID, actorID string, cascadeArchive bool) ([]domain.Ticket, error) {
	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !c.Open() {
		return nil, util.NewAlreadyInState("case is already closed")
	}

	var move func(domain.Ticket) error
	if cascadeArchive {
		move = func(ticket domain.Ticket) error {
			id, kind, ok := ticket.TriggerRef()
			if !ok {
				return nil
			}
			trigger, err := s.panels.GetTrigger(ctx, kind, id)
			if err != nil {
				return fmt.Errorf("resolve trigger for ticket %d: %w", ticket.ID, err)
			}
			if trigger.ArchiveCategoryID == nil {
				return nil
			}
			if err := s.client.MoveChannel(ctx, ticket.ChannelID, *trigger.ArchiveCategoryID); err != nil {
				return fmt.Errorf("move ticket %d channel: %w", ticket.ID, err)
			}
			return nil
		}
	}

	affected, err := s.cases.CloseCascade(ctx, caseID, time.Now().UTC(), move)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewAlreadyInState("case is already closed")
		}
		return nil, util.MapError(err)
	}

	if s.dispatcher != nil {
		ids := make([]int64, 0, len(affected))
		for _, ticket := range affected {
			ids = append(ids, ticket.ID)
		}
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventCaseClosed,
			GuildID:   c.GuildID,
			ActorID:   actorID,
			Timestamp: time.Now().UTC(),
			Payload: events.CaseClosedPayload{
				CaseID:    caseID,
				TicketIDs: ids,
				Cascaded:  cascadeArchive,
			},
		})
	}
	s.logger.Info("case closed",
		zap.String("case_id", caseID),
		zap.Bool("cascade", cascadeArchive),
		zap.Int("archived_tickets", len(affected)))
	return affected, nil
}

// ReopenCase clears the closed timestamp. Tickets archived by a cascade
// stay archived; reopening a case never reverses ticket state.
func (s *CaseService) ReopenCase(ctx context.Context, caseID string) error {
	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return err
	}
	if c.Open() {
		return util.NewAlreadyInState("case is not closed")
	}
	return util.MapError(s.cases.Reopen(ctx, caseID))
}

// GetCase loads a case with its ticket links and notes.
func (s *CaseService) GetCase(ctx context.Context, caseID string) (*domain.Case, error) {
	return s.getCase(ctx, caseID)
}

func (s *CaseService) getCase(ctx context.Context, caseID string) (*domain.Case, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("case", nil)
		}
		return nil, util.MapError(err)
	}
	return c, nil
}
