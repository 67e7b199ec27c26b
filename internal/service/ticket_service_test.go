package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ticketforge/ticket-bot/internal/config"
	"github.com/ticketforge/ticket-bot/internal/domain"
	"github.com/ticketforge/ticket-bot/internal/events"
	"github.com/ticketforge/ticket-bot/pkg/util"
)

type ticketFixture struct {
	tickets    *fakeTicketRepo
	panels     *fakePanelRepo
	settings   *fakeSettingsRepo
	catalog    *fakeCatalogRepo
	deletions  *fakeDeletionRepo
	client     *fakeClient
	dispatcher *fakeDispatcher
	svc        *TicketService
}

func newTicketFixture(t *testing.T) *ticketFixture {
	t.Helper()
	fx := &ticketFixture{
		tickets:    newFakeTicketRepo(),
		panels:     newFakePanelRepo(),
		settings:   newFakeSettingsRepo(),
		catalog:    newFakeCatalogRepo(),
		deletions:  newFakeDeletionRepo(),
		client:     newFakeClient(),
		dispatcher: newFakeDispatcher(),
	}
	logger := zap.NewNop()
	fx.svc = NewTicketService(TicketDependencies{
		TicketRepo:   fx.tickets,
		PanelRepo:    fx.panels,
		SettingsRepo: fx.settings,
		CatalogRepo:  fx.catalog,
		DeletionRepo: fx.deletions,
		Client:       fx.client,
		Transcripts:  NewTranscriptArchiver(fx.tickets, fx.settings, fx.client, logger),
		Dispatcher:   fx.dispatcher,
		Defaults:     config.DefaultsConfig{MaxActiveTickets: 1, DeleteDelayMinutes: 5},
		Logger:       logger,
	})
	return fx
}

func (fx *ticketFixture) seedButton(t *testing.T, mutate func(*domain.Trigger)) *domain.Trigger {
	t.Helper()
	trigger := &domain.Trigger{
		PanelID:           1,
		Kind:              domain.TriggerKindButton,
		Label:             "Support",
		ChannelNameFormat: "ticket-%sequence%",
	}
	if mutate != nil {
		mutate(trigger)
	}
	fx.panels.putTrigger(trigger)
	return trigger
}

func (fx *ticketFixture) create(t *testing.T, trigger *domain.Trigger, userID string) *domain.Ticket {
	t.Helper()
	ticket, err := fx.svc.Create(context.Background(), CreateInput{
		GuildID:     "guild-1",
		UserID:      userID,
		Username:    "alice",
		TriggerKind: trigger.Kind,
		TriggerID:   trigger.ID,
	})
	require.NoError(t, err)
	return ticket
}

func TestCreateOpensChannelAndPersists(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, nil)

	ticket := fx.create(t, trigger, "user-1")

	require.NotZero(t, ticket.ID)
	require.Equal(t, "chan-1", ticket.ChannelID)
	require.NotNil(t, ticket.ButtonID)
	require.Equal(t, trigger.ID, *ticket.ButtonID)
	require.Nil(t, ticket.SelectOptionID)

	require.Len(t, fx.client.created, 1)
	require.Equal(t, "ticket-1", fx.client.created[0].Name)
	require.NotEmpty(t, fx.client.created[0].Overlays)

	msgs := fx.client.messagesTo("chan-1")
	require.NotEmpty(t, msgs)
	require.Len(t, msgs[0].Components, 1)
	require.Len(t, msgs[0].Components[0].Buttons, 2)
	require.Equal(t, ClaimCustomID, msgs[0].Components[0].Buttons[0].CustomID)
	require.Equal(t, CloseCustomID, msgs[0].Components[0].Buttons[1].CustomID)

	require.Contains(t, fx.dispatcher.types(), events.EventTicketCreated)
}

func TestCreateSequenceAdvancesPerGuild(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, func(tr *domain.Trigger) {
		max := 5
		tr.MaxActiveTickets = &max
	})

	fx.create(t, trigger, "user-1")
	fx.create(t, trigger, "user-1")

	require.Equal(t, "ticket-1", fx.client.created[0].Name)
	require.Equal(t, "ticket-2", fx.client.created[1].Name)
}

func TestCreateEnforcesActiveCeiling(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, nil)

	fx.create(t, trigger, "user-1")

	_, err := fx.svc.Create(context.Background(), CreateInput{
		GuildID:     "guild-1",
		UserID:      "user-1",
		Username:    "alice",
		TriggerKind: trigger.Kind,
		TriggerID:   trigger.ID,
	})
	require.True(t, util.IsCode(err, util.CodeLimitExceeded))

	// a closed ticket frees the slot
	first, err := fx.tickets.GetByChannel(context.Background(), "chan-1")
	require.NoError(t, err)
	require.NoError(t, fx.tickets.MarkClosed(context.Background(), first.ID, time.Now()))

	fx.create(t, trigger, "user-1")
}

func TestCreateRejectsBlacklistedUser(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, nil)
	require.NoError(t, fx.settings.Upsert(context.Background(), &domain.GuildTicketSettings{
		GuildID:   "guild-1",
		Blacklist: []string{"user-1"},
	}))

	_, err := fx.svc.Create(context.Background(), CreateInput{
		GuildID:     "guild-1",
		UserID:      "user-1",
		Username:    "alice",
		TriggerKind: trigger.Kind,
		TriggerID:   trigger.ID,
	})
	require.True(t, util.IsCode(err, util.CodeUnauthorized))
	require.Empty(t, fx.client.created)
}

func TestCreateUnknownTrigger(t *testing.T) {
	fx := newTicketFixture(t)
	_, err := fx.svc.Create(context.Background(), CreateInput{
		GuildID:     "guild-1",
		UserID:      "user-1",
		Username:    "alice",
		TriggerKind: domain.TriggerKindButton,
		TriggerID:   99,
	})
	require.True(t, util.IsCode(err, util.CodeNotFound))
}

func TestCreatePlatformFailureLeavesNoRow(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, nil)
	fx.client.createErr = errRemote

	_, err := fx.svc.Create(context.Background(), CreateInput{
		GuildID:     "guild-1",
		UserID:      "user-1",
		Username:    "alice",
		TriggerKind: trigger.Kind,
		TriggerID:   trigger.ID,
	})
	require.True(t, util.IsCode(err, util.CodePlatformFailure))

	_, err = fx.tickets.GetByChannel(context.Background(), "chan-1")
	require.Error(t, err)
}

func TestClaimHappyPath(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, nil)
	ticket := fx.create(t, trigger, "user-1")
	fx.client.admins["staff-1"] = true

	require.NoError(t, fx.svc.Claim(context.Background(), ticket.ID, "staff-1"))

	stored, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStateClaimed, stored.State())
	require.Equal(t, "staff-1", *stored.ClaimedBy)
	require.Contains(t, fx.dispatcher.types(), events.EventTicketClaimed)
}

func TestClaimRequiresSupportMembership(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, func(tr *domain.Trigger) {
		tr.SupportRoleIDs = []string{"role-support"}
	})
	ticket := fx.create(t, trigger, "user-1")

	err := fx.svc.Claim(context.Background(), ticket.ID, "rando")
	require.True(t, util.IsCode(err, util.CodeUnauthorized))

	fx.client.roles["staff-1"] = []string{"role-support"}
	require.NoError(t, fx.svc.Claim(context.Background(), ticket.ID, "staff-1"))
}

func TestClaimLosesRace(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, nil)
	ticket := fx.create(t, trigger, "user-1")
	fx.client.admins["staff-1"] = true
	fx.tickets.claimRace = true

	err := fx.svc.Claim(context.Background(), ticket.ID, "staff-1")
	require.True(t, util.IsCode(err, util.CodeAlreadyInState))
}

func TestUnclaimOnlyHolderOrAdmin(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, nil)
	ticket := fx.create(t, trigger, "user-1")
	fx.client.admins["staff-1"] = true
	require.NoError(t, fx.svc.Claim(context.Background(), ticket.ID, "staff-1"))

	err := fx.svc.Unclaim(context.Background(), ticket.ID, "staff-2")
	require.True(t, util.IsCode(err, util.CodeUnauthorized))

	require.NoError(t, fx.svc.Unclaim(context.Background(), ticket.ID, "staff-1"))
	stored, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Nil(t, stored.ClaimedBy)
}

func TestCloseDefaultBehaviorLocksAndRenames(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, nil)
	ticket := fx.create(t, trigger, "user-1")

	require.NoError(t, fx.svc.Close(context.Background(), ticket.ID, "staff-1", false))

	stored, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.True(t, stored.Closed)
	require.False(t, stored.Archived)

	require.True(t, strings.HasPrefix(fx.client.renames[ticket.ChannelID], "closed-"))
	require.Contains(t, fx.client.removed, ticket.ChannelID+"/user-1")
	require.Empty(t, fx.deletions.scheduled)
	require.Contains(t, fx.dispatcher.types(), events.EventTicketClosed)
}

func TestCloseWithDeleteSchedulesDeferredCleanup(t *testing.T) {
	fx := newTicketFixture(t)
	deleteIt := true
	delay := 10 * time.Minute
	trigger := fx.seedButton(t, func(tr *domain.Trigger) {
		tr.CloseBehavior = domain.CloseBehavior{Delete: &deleteIt, DeleteDelay: &delay}
	})
	ticket := fx.create(t, trigger, "user-1")
	before := time.Now().UTC()

	require.NoError(t, fx.svc.Close(context.Background(), ticket.ID, "staff-1", false))

	require.Len(t, fx.deletions.scheduled, 1)
	d := fx.deletions.scheduled[0]
	require.Equal(t, ticket.ID, d.TicketID)
	require.Equal(t, ticket.ChannelID, d.ChannelID)
	require.WithinDuration(t, before.Add(delay), d.ExecuteAt, 5*time.Second)

	// the channel itself is still up until the worker runs
	require.Empty(t, fx.client.deleted)

	msgs := fx.client.messagesTo(ticket.ChannelID)
	require.Contains(t, msgs[len(msgs)-1].Content, "deleted in")
}

func TestCloseGuildDefaultYieldsToTriggerOverride(t *testing.T) {
	fx := newTicketFixture(t)
	noRename := false
	trigger := fx.seedButton(t, func(tr *domain.Trigger) {
		tr.CloseBehavior = domain.CloseBehavior{Rename: &noRename}
	})
	guildRename := true
	require.NoError(t, fx.settings.Upsert(context.Background(), &domain.GuildTicketSettings{
		GuildID:       "guild-1",
		CloseBehavior: &domain.CloseBehavior{Rename: &guildRename},
	}))
	ticket := fx.create(t, trigger, "user-1")

	require.NoError(t, fx.svc.Close(context.Background(), ticket.ID, "staff-1", false))
	require.NotContains(t, fx.client.renames, ticket.ChannelID)
}

func TestCloseAlreadyClosed(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, nil)
	ticket := fx.create(t, trigger, "user-1")
	require.NoError(t, fx.svc.Close(context.Background(), ticket.ID, "staff-1", false))

	err := fx.svc.Close(context.Background(), ticket.ID, "staff-1", false)
	require.True(t, util.IsCode(err, util.CodeAlreadyInState))
}

func TestCloseForceArchiveCascades(t *testing.T) {
	fx := newTicketFixture(t)
	archiveCat := "cat-archive"
	trigger := fx.seedButton(t, func(tr *domain.Trigger) {
		tr.ArchiveCategoryID = &archiveCat
	})
	ticket := fx.create(t, trigger, "user-1")

	require.NoError(t, fx.svc.Close(context.Background(), ticket.ID, "staff-1", true))

	stored, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.True(t, stored.Closed)
	require.True(t, stored.Archived)
	require.Equal(t, archiveCat, fx.client.moved[ticket.ChannelID])
	require.True(t, strings.HasPrefix(fx.client.renames[ticket.ChannelID], "archived-"))
	require.Contains(t, fx.dispatcher.types(), events.EventTicketArchived)

	var closed *events.TicketClosedPayload
	for _, ev := range fx.dispatcher.published {
		if ev.Type == events.EventTicketClosed {
			payload := ev.Payload.(events.TicketClosedPayload)
			closed = &payload
		}
	}
	require.NotNil(t, closed)
	require.True(t, closed.Archived)
}

func TestAutoArchiveOnClose(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, func(tr *domain.Trigger) {
		tr.AutoArchiveOnClose = true
	})
	ticket := fx.create(t, trigger, "user-1")

	require.NoError(t, fx.svc.Close(context.Background(), ticket.ID, "staff-1", false))

	stored, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.True(t, stored.Archived)
}

func TestReopenCancelsPendingDeletion(t *testing.T) {
	fx := newTicketFixture(t)
	deleteIt := true
	trigger := fx.seedButton(t, func(tr *domain.Trigger) {
		tr.CloseBehavior = domain.CloseBehavior{Delete: &deleteIt}
	})
	ticket := fx.create(t, trigger, "user-1")
	fx.client.admins["staff-1"] = true

	require.NoError(t, fx.svc.Close(context.Background(), ticket.ID, "staff-1", false))
	require.Len(t, fx.deletions.scheduled, 1)

	require.NoError(t, fx.svc.Reopen(context.Background(), ticket.ID, "staff-1"))

	require.Empty(t, fx.deletions.scheduled)
	require.Contains(t, fx.deletions.cancelled, ticket.ID)
	stored, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStateOpen, stored.State())
}

func TestReopenStripsNamePrefix(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, nil)
	ticket := fx.create(t, trigger, "user-1")
	fx.client.admins["staff-1"] = true

	require.NoError(t, fx.svc.Close(context.Background(), ticket.ID, "staff-1", false))
	require.Equal(t, "closed-ticket-1", fx.client.names[ticket.ChannelID])

	require.NoError(t, fx.svc.Reopen(context.Background(), ticket.ID, "staff-1"))
	require.Equal(t, "ticket-1", fx.client.names[ticket.ChannelID])
}

func TestReopenDeletedTicketFails(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, nil)
	ticket := fx.create(t, trigger, "user-1")
	require.NoError(t, fx.tickets.MarkDeleted(context.Background(), ticket.ID, time.Now()))

	err := fx.svc.Reopen(context.Background(), ticket.ID, "staff-1")
	require.True(t, util.IsCode(err, util.CodeAlreadyInState))
}

func TestSetPriorityValidatesAllowedSet(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, func(tr *domain.Trigger) {
		tr.AllowedPriorityIDs = []int64{1}
	})
	ticket := fx.create(t, trigger, "user-1")
	fx.client.admins["staff-1"] = true
	require.NoError(t, fx.catalog.CreatePriority(context.Background(), &domain.Priority{ID: 1, GuildID: "guild-1", Name: "urgent"}))
	require.NoError(t, fx.catalog.CreatePriority(context.Background(), &domain.Priority{ID: 2, GuildID: "guild-1", Name: "low"}))

	require.NoError(t, fx.svc.SetPriority(context.Background(), ticket.ID, "staff-1", 1))

	err := fx.svc.SetPriority(context.Background(), ticket.ID, "staff-1", 2)
	require.True(t, util.IsCode(err, util.CodeConflict))
}

func TestSetPriorityRejectsForeignGuild(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, nil)
	ticket := fx.create(t, trigger, "user-1")
	fx.client.admins["staff-1"] = true
	require.NoError(t, fx.catalog.CreatePriority(context.Background(), &domain.Priority{ID: 7, GuildID: "guild-other"}))

	err := fx.svc.SetPriority(context.Background(), ticket.ID, "staff-1", 7)
	require.True(t, util.IsCode(err, util.CodeNotFound))
}

func TestTagLifecycle(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, nil)
	ticket := fx.create(t, trigger, "user-1")
	fx.client.admins["staff-1"] = true
	require.NoError(t, fx.catalog.CreateTag(context.Background(), &domain.Tag{ID: 3, GuildID: "guild-1", Name: "billing"}))

	require.NoError(t, fx.svc.AddTag(context.Background(), ticket.ID, "staff-1", 3))
	stored, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{3}, stored.TagIDs)

	require.NoError(t, fx.svc.RemoveTag(context.Background(), ticket.ID, "staff-1", 3))
	stored, err = fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Empty(t, stored.TagIDs)
}

func TestAddNotePostsAndTouches(t *testing.T) {
	fx := newTicketFixture(t)
	trigger := fx.seedButton(t, nil)
	ticket := fx.create(t, trigger, "user-1")
	fx.client.admins["staff-1"] = true

	require.NoError(t, fx.svc.AddNote(context.Background(), ticket.ID, "staff-1", "escalated to billing"))

	msgs := fx.client.messagesTo(ticket.ChannelID)
	require.Contains(t, msgs[len(msgs)-1].Content, "escalated to billing")
}

func TestRenderChannelName(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		username string
		sequence int64
		want     string
	}{
		{name: "default format", format: "", username: "alice", sequence: 4, want: "ticket-4"},
		{name: "username substitution", format: "help-%username%", username: "Alice B", sequence: 1, want: "help-alice-b"},
		{name: "both placeholders", format: "%username%-%sequence%", username: "bob", sequence: 12, want: "bob-12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, renderChannelName(tt.format, tt.username, tt.sequence))
		})
	}
}

func TestRenderChannelNameTruncates(t *testing.T) {
	long := renderChannelName(strings.Repeat("x", 200), "u", 1)
	require.Len(t, long, 100)
}
