package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ticketforge/ticket-bot/internal/domain"
	"github.com/ticketforge/ticket-bot/internal/events"
	"github.com/ticketforge/ticket-bot/internal/platform"
)

// In-memory fakes for the repository and platform interfaces. They keep
// whatever state the test seeds and record mutating calls for assertions.

var errRemote = errors.New("remote unavailable")

type fakeTicketRepo struct {
	mu        sync.Mutex
	nextID    int64
	tickets   map[int64]*domain.Ticket
	createErr error
	claimRace bool
	deleted   []int64
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[int64]*domain.Ticket)}
}

func (r *fakeTicketRepo) put(t *domain.Ticket) *domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == 0 {
		r.nextID++
		t.ID = r.nextID
	} else if t.ID > r.nextID {
		r.nextID = t.ID
	}
	r.tickets[t.ID] = t
	return t
}

func (r *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	if r.createErr != nil {
		return r.createErr
	}
	ticket.CreatedAt = time.Now().UTC()
	ticket.LastActivityAt = ticket.CreatedAt
	r.put(ticket)
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTicketRepo) GetByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tickets {
		if t.ChannelID == channelID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) NextSequence(ctx context.Context, guildID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tickets {
		if t.GuildID == guildID {
			n++
		}
	}
	return n + 1, nil
}

func (r *fakeTicketRepo) CountActiveForTrigger(ctx context.Context, creatorID string, kind domain.TriggerKind, triggerID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, t := range r.tickets {
		if t.CreatorID != creatorID || !t.Active() {
			continue
		}
		id, variant, ok := t.TriggerRef()
		if ok && variant == kind && id == triggerID {
			count++
		}
	}
	return count, nil
}

func (r *fakeTicketRepo) Claim(ctx context.Context, id int64, staffID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return false, nil
	}
	if r.claimRace || t.ClaimedBy != nil || t.Closed || t.Deleted {
		return false, nil
	}
	t.ClaimedBy = &staffID
	return true, nil
}

func (r *fakeTicketRepo) Unclaim(ctx context.Context, id int64) error {
	return r.mutate(id, func(t *domain.Ticket) { t.ClaimedBy = nil })
}

func (r *fakeTicketRepo) MarkClosed(ctx context.Context, id int64, at time.Time) error {
	return r.mutate(id, func(t *domain.Ticket) {
		t.Closed = true
		t.ClosedAt = &at
	})
}

func (r *fakeTicketRepo) MarkArchived(ctx context.Context, id int64, at time.Time) error {
	return r.mutate(id, func(t *domain.Ticket) {
		t.Archived = true
		t.ArchivedAt = &at
	})
}

func (r *fakeTicketRepo) MarkDeleted(ctx context.Context, id int64, at time.Time) error {
	return r.mutate(id, func(t *domain.Ticket) {
		t.Deleted = true
		t.DeletedAt = &at
	})
}

func (r *fakeTicketRepo) Reopen(ctx context.Context, id int64) error {
	return r.mutate(id, func(t *domain.Ticket) {
		t.Closed = false
		t.Archived = false
		t.ClosedAt = nil
		t.ArchivedAt = nil
		t.ClaimedBy = nil
	})
}

func (r *fakeTicketRepo) SetTranscript(ctx context.Context, id int64, pointer string) error {
	return r.mutate(id, func(t *domain.Ticket) { t.Transcript = &pointer })
}

func (r *fakeTicketRepo) SetPriority(ctx context.Context, id int64, priorityID int64) error {
	return r.mutate(id, func(t *domain.Ticket) { t.PriorityID = &priorityID })
}

func (r *fakeTicketRepo) AddTag(ctx context.Context, id int64, tagID int64) error {
	return r.mutate(id, func(t *domain.Ticket) { t.TagIDs = append(t.TagIDs, tagID) })
}

func (r *fakeTicketRepo) RemoveTag(ctx context.Context, id int64, tagID int64) error {
	return r.mutate(id, func(t *domain.Ticket) {
		kept := t.TagIDs[:0]
		for _, tg := range t.TagIDs {
			if tg != tagID {
				kept = append(kept, tg)
			}
		}
		t.TagIDs = kept
	})
}

func (r *fakeTicketRepo) Touch(ctx context.Context, id int64, at time.Time) error {
	return r.mutate(id, func(t *domain.Ticket) { t.LastActivityAt = at })
}

func (r *fakeTicketRepo) HardDelete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tickets, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeTicketRepo) mutate(id int64, fn func(*domain.Ticket)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(t)
	return nil
}

type fakePanelRepo struct {
	mu          sync.Mutex
	nextID      int64
	panels      map[int64]*domain.Panel
	triggers    map[string]*domain.Trigger
	refTickets  []domain.Ticket
	detached    []int64
	lastUpdate  *domain.TriggerUpdate
	messageSets int
}

func newFakePanelRepo() *fakePanelRepo {
	return &fakePanelRepo{
		panels:   make(map[int64]*domain.Panel),
		triggers: make(map[string]*domain.Trigger),
	}
}

func triggerKey(kind domain.TriggerKind, id int64) string {
	return fmt.Sprintf("%s/%d", kind, id)
}

func (r *fakePanelRepo) putTrigger(t *domain.Trigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == 0 {
		r.nextID++
		t.ID = r.nextID
	}
	r.triggers[triggerKey(t.Kind, t.ID)] = t
}

func (r *fakePanelRepo) Create(ctx context.Context, panel *domain.Panel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	panel.ID = r.nextID
	r.panels[panel.ID] = panel
	return nil
}

func (r *fakePanelRepo) GetByID(ctx context.Context, id int64) (*domain.Panel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.panels[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (r *fakePanelRepo) ListByGuild(ctx context.Context, guildID string) ([]domain.Panel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Panel
	for _, p := range r.panels {
		if p.GuildID == guildID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePanelRepo) SetMessage(ctx context.Context, id int64, channelID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.panels[id]
	if !ok {
		return pgx.ErrNoRows
	}
	p.ChannelID = channelID
	p.MessageID = messageID
	r.messageSets++
	return nil
}

func (r *fakePanelRepo) AddButton(ctx context.Context, trigger *domain.Trigger) error {
	r.putTrigger(trigger)
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.panels[trigger.PanelID]; ok {
		p.Buttons = append(p.Buttons, *trigger)
	}
	return nil
}

func (r *fakePanelRepo) AddMenu(ctx context.Context, menu *domain.SelectMenu) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	menu.ID = r.nextID
	if p, ok := r.panels[menu.PanelID]; ok {
		p.Menus = append(p.Menus, *menu)
	}
	return nil
}

func (r *fakePanelRepo) AddOption(ctx context.Context, trigger *domain.Trigger) error {
	r.putTrigger(trigger)
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.panels[trigger.PanelID]
	if !ok {
		return nil
	}
	for i := range p.Menus {
		if trigger.MenuID != nil && p.Menus[i].ID == *trigger.MenuID {
			p.Menus[i].Options = append(p.Menus[i].Options, *trigger)
		}
	}
	return nil
}

func (r *fakePanelRepo) GetTrigger(ctx context.Context, kind domain.TriggerKind, id int64) (*domain.Trigger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.triggers[triggerKey(kind, id)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (r *fakePanelRepo) UpdateTrigger(ctx context.Context, kind domain.TriggerKind, id int64, update domain.TriggerUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.triggers[triggerKey(kind, id)]
	if !ok {
		return pgx.ErrNoRows
	}
	if update.Label != nil {
		t.Label = *update.Label
	}
	if update.MaxActiveTickets != nil {
		t.MaxActiveTickets = update.MaxActiveTickets
	}
	r.lastUpdate = &update
	return nil
}

func (r *fakePanelRepo) TriggerIDs(ctx context.Context, panelID int64) ([]int64, []int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var buttons, options []int64
	for _, t := range r.triggers {
		if t.PanelID != panelID {
			continue
		}
		if t.Kind == domain.TriggerKindButton {
			buttons = append(buttons, t.ID)
		} else {
			options = append(options, t.ID)
		}
	}
	return buttons, options, nil
}

func (r *fakePanelRepo) ReferencingTickets(ctx context.Context, buttonIDs, optionIDs []int64) ([]domain.Ticket, error) {
	return append([]domain.Ticket{}, r.refTickets...), nil
}

func (r *fakePanelRepo) DetachAndDelete(ctx context.Context, panelID int64, buttonIDs, optionIDs []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.panels, panelID)
	for _, t := range r.triggers {
		if t.PanelID == panelID {
			delete(r.triggers, triggerKey(t.Kind, t.ID))
		}
	}
	r.detached = append(r.detached, panelID)
	return nil
}

type fakeSettingsRepo struct {
	mu       sync.Mutex
	settings map[string]*domain.GuildTicketSettings
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{settings: make(map[string]*domain.GuildTicketSettings)}
}

func (r *fakeSettingsRepo) Get(ctx context.Context, guildID string) (*domain.GuildTicketSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.settings[guildID]; ok {
		cp := *s
		return &cp, nil
	}
	return &domain.GuildTicketSettings{GuildID: guildID, NotifySupportRoles: true}, nil
}

func (r *fakeSettingsRepo) Upsert(ctx context.Context, settings *domain.GuildTicketSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *settings
	r.settings[settings.GuildID] = &cp
	return nil
}

type fakeCatalogRepo struct {
	priorities map[int64]*domain.Priority
	tags       map[int64]*domain.Tag
}

func newFakeCatalogRepo() *fakeCatalogRepo {
	return &fakeCatalogRepo{
		priorities: make(map[int64]*domain.Priority),
		tags:       make(map[int64]*domain.Tag),
	}
}

func (r *fakeCatalogRepo) CreatePriority(ctx context.Context, priority *domain.Priority) error {
	r.priorities[priority.ID] = priority
	return nil
}

func (r *fakeCatalogRepo) GetPriority(ctx context.Context, id int64) (*domain.Priority, error) {
	p, ok := r.priorities[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return p, nil
}

func (r *fakeCatalogRepo) ListPriorities(ctx context.Context, guildID string) ([]domain.Priority, error) {
	var out []domain.Priority
	for _, p := range r.priorities {
		if p.GuildID == guildID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeCatalogRepo) CreateTag(ctx context.Context, tag *domain.Tag) error {
	r.tags[tag.ID] = tag
	return nil
}

func (r *fakeCatalogRepo) GetTag(ctx context.Context, id int64) (*domain.Tag, error) {
	t, ok := r.tags[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return t, nil
}

func (r *fakeCatalogRepo) ListTags(ctx context.Context, guildID string) ([]domain.Tag, error) {
	var out []domain.Tag
	for _, t := range r.tags {
		if t.GuildID == guildID {
			out = append(out, *t)
		}
	}
	return out, nil
}

type fakeDeletionRepo struct {
	mu        sync.Mutex
	scheduled []*domain.ScheduledDeletion
	cancelled []int64
}

func newFakeDeletionRepo() *fakeDeletionRepo { return &fakeDeletionRepo{} }

func (r *fakeDeletionRepo) Schedule(ctx context.Context, deletion *domain.ScheduledDeletion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *deletion
	r.scheduled = append(r.scheduled, &cp)
	return nil
}

func (r *fakeDeletionRepo) DueBatch(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledDeletion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ScheduledDeletion
	for _, d := range r.scheduled {
		if !d.Processed && !d.ExecuteAt.After(now) {
			out = append(out, *d)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeDeletionRepo) MarkProcessed(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.scheduled {
		if d.ID == id {
			d.Processed = true
		}
	}
	return nil
}

func (r *fakeDeletionRepo) RecordFailure(ctx context.Context, id string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.scheduled {
		if d.ID == id {
			d.RetryCount++
			d.FailureReason = &reason
		}
	}
	return nil
}

func (r *fakeDeletionRepo) CancelForTicket(ctx context.Context, ticketID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.scheduled[:0]
	for _, d := range r.scheduled {
		if d.TicketID != ticketID {
			kept = append(kept, d)
		}
	}
	r.scheduled = kept
	r.cancelled = append(r.cancelled, ticketID)
	return nil
}

type recordedEvent struct {
	Type    events.EventType
	Payload any
}

type fakeDispatcher struct {
	mu        sync.Mutex
	published []recordedEvent
	handlers  map[events.EventType][]events.EventHandler
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{handlers: make(map[events.EventType][]events.EventHandler)}
}

func (d *fakeDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	d.published = append(d.published, recordedEvent{Type: event.Type, Payload: event.Payload})
	handlers := append([]events.EventHandler{}, d.handlers[event.Type]...)
	d.mu.Unlock()
	for _, h := range handlers {
		_ = h(ctx, event)
	}
	return nil
}

func (d *fakeDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

func (d *fakeDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, 0, len(d.published))
	for _, e := range d.published {
		out = append(out, e.Type)
	}
	return out
}

type sentMessage struct {
	ChannelID string
	Msg       platform.Message
}

type fakeClient struct {
	mu sync.Mutex

	nextChannel int
	createErr   error
	created     []platform.ChannelCreate

	names    map[string]string
	renames  map[string]string
	moved    map[string]string
	overlays map[string][]platform.PermissionOverlay
	removed  []string
	deleted  []string

	sendErr  error
	sent     []sentMessage
	edited   []sentMessage
	delMsgs  []string
	dms      map[string][]platform.Message
	uploads  map[string][]byte
	history  map[string][]platform.HistoryMessage
	histErr  error
	roles    map[string][]string
	roleMems map[string][]string
	admins   map[string]bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		names:    make(map[string]string),
		renames:  make(map[string]string),
		moved:    make(map[string]string),
		overlays: make(map[string][]platform.PermissionOverlay),
		dms:      make(map[string][]platform.Message),
		uploads:  make(map[string][]byte),
		history:  make(map[string][]platform.HistoryMessage),
		roles:    make(map[string][]string),
		roleMems: make(map[string][]string),
		admins:   make(map[string]bool),
	}
}

func (c *fakeClient) CreateChannel(ctx context.Context, guildID string, create platform.ChannelCreate) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return "", c.createErr
	}
	c.nextChannel++
	id := fmt.Sprintf("chan-%d", c.nextChannel)
	c.created = append(c.created, create)
	c.names[id] = create.Name
	c.overlays[id] = create.Overlays
	return id, nil
}

func (c *fakeClient) DeleteChannel(ctx context.Context, channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, channelID)
	return nil
}

func (c *fakeClient) RenameChannel(ctx context.Context, channelID, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renames[channelID] = name
	c.names[channelID] = name
	return nil
}

func (c *fakeClient) MoveChannel(ctx context.Context, channelID, parentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moved[channelID] = parentID
	return nil
}

func (c *fakeClient) SetOverlays(ctx context.Context, channelID string, overlays []platform.PermissionOverlay) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overlays[channelID] = overlays
	return nil
}

func (c *fakeClient) RemoveOverlay(ctx context.Context, channelID, targetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = append(c.removed, channelID+"/"+targetID)
	return nil
}

func (c *fakeClient) SendMessage(ctx context.Context, channelID string, msg platform.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.sent = append(c.sent, sentMessage{ChannelID: channelID, Msg: msg})
	return fmt.Sprintf("msg-%d", len(c.sent)), nil
}

func (c *fakeClient) EditMessage(ctx context.Context, channelID, messageID string, msg platform.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edited = append(c.edited, sentMessage{ChannelID: channelID, Msg: msg})
	return nil
}

func (c *fakeClient) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delMsgs = append(c.delMsgs, channelID+"/"+messageID)
	return nil
}

func (c *fakeClient) SendDirectMessage(ctx context.Context, userID string, msg platform.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dms[userID] = append(c.dms[userID], msg)
	return nil
}

func (c *fakeClient) UploadFile(ctx context.Context, channelID, filename string, data []byte, content string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploads[channelID+"/"+filename] = data
	return fmt.Sprintf("upload-%d", len(c.uploads)), nil
}

func (c *fakeClient) ChannelHistory(ctx context.Context, channelID string) ([]platform.HistoryMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.histErr != nil {
		return nil, c.histErr
	}
	return c.history[channelID], nil
}

func (c *fakeClient) ChannelName(ctx context.Context, channelID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.names[channelID]
	if !ok {
		return "", fmt.Errorf("unknown channel %s", channelID)
	}
	return name, nil
}

func (c *fakeClient) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roles[userID], nil
}

func (c *fakeClient) RoleMembers(ctx context.Context, guildID, roleID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roleMems[roleID], nil
}

func (c *fakeClient) IsAdmin(ctx context.Context, guildID, userID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.admins[userID], nil
}

func (c *fakeClient) BotUserID() string { return "bot-1" }

func (c *fakeClient) messagesTo(channelID string) []platform.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []platform.Message
	for _, m := range c.sent {
		if m.ChannelID == channelID {
			out = append(out, m.Msg)
		}
	}
	return out
}
