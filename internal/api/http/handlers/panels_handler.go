package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ticketforge/ticket-bot/internal/domain"
	"github.com/ticketforge/ticket-bot/internal/service"
	apperrors "github.com/ticketforge/ticket-bot/pkg/util"
)

// PanelsHandler exposes the admin panel-configuration endpoints. All
// end-user interaction happens through the chat gateway; these routes are
// for dashboards and operators.
type PanelsHandler struct {
	service *service.PanelService
}

// NewPanelsHandler constructs handler.
func NewPanelsHandler(panelService *service.PanelService) *PanelsHandler {
	return &PanelsHandler{service: panelService}
}

type createPanelRequest struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	EmbedJSON string `json:"embed_json"`
}

type createMenuRequest struct {
	Placeholder string `json:"placeholder"`
}

type closeBehaviorRequest struct {
	Delete             *bool `json:"delete"`
	Lock               *bool `json:"lock"`
	Rename             *bool `json:"rename"`
	RemoveCreator      *bool `json:"remove_creator"`
	DeleteDelaySeconds *int  `json:"delete_delay_seconds"`
}

func (r *closeBehaviorRequest) toDomain() domain.CloseBehavior {
	if r == nil {
		return domain.CloseBehavior{}
	}
	behavior := domain.CloseBehavior{
		Delete:        r.Delete,
		Lock:          r.Lock,
		Rename:        r.Rename,
		RemoveCreator: r.RemoveCreator,
	}
	if r.DeleteDelaySeconds != nil {
		delay := time.Duration(*r.DeleteDelaySeconds) * time.Second
		behavior.DeleteDelay = &delay
	}
	return behavior
}

type triggerRequest struct {
	Label              string                `json:"label"`
	Style              int                   `json:"style"`
	Emoji              string                `json:"emoji"`
	CategoryID         *string               `json:"category_id"`
	ArchiveCategoryID  *string               `json:"archive_category_id"`
	SupportRoleIDs     []string              `json:"support_role_ids"`
	ViewerRoleIDs      []string              `json:"viewer_role_ids"`
	CloseBehavior      *closeBehaviorRequest `json:"close_behavior"`
	ArchiveBehavior    *closeBehaviorRequest `json:"archive_behavior"`
	AutoArchiveOnClose bool                  `json:"auto_archive_on_close"`
	MaxActiveTickets   *int                  `json:"max_active_tickets"`
	AllowedPriorityIDs []int64               `json:"allowed_priority_ids"`
	DefaultPriorityID  *int64                `json:"default_priority_id"`
	SaveTranscript     bool                  `json:"save_transcript"`
	OpeningMessage     *string               `json:"opening_message"`
	ChannelNameFormat  string                `json:"channel_name_format"`
}

func (r *triggerRequest) toDomain(panelID int64, menuID *int64) *domain.Trigger {
	return &domain.Trigger{
		PanelID:            panelID,
		MenuID:             menuID,
		Label:              r.Label,
		Style:              r.Style,
		Emoji:              r.Emoji,
		CategoryID:         r.CategoryID,
		ArchiveCategoryID:  r.ArchiveCategoryID,
		SupportRoleIDs:     r.SupportRoleIDs,
		ViewerRoleIDs:      r.ViewerRoleIDs,
		CloseBehavior:      r.CloseBehavior.toDomain(),
		ArchiveBehavior:    r.ArchiveBehavior.toDomain(),
		AutoArchiveOnClose: r.AutoArchiveOnClose,
		MaxActiveTickets:   r.MaxActiveTickets,
		AllowedPriorityIDs: r.AllowedPriorityIDs,
		DefaultPriorityID:  r.DefaultPriorityID,
		SaveTranscript:     r.SaveTranscript,
		OpeningMessage:     r.OpeningMessage,
		ChannelNameFormat:  r.ChannelNameFormat,
	}
}

type triggerUpdateRequest struct {
	Label              *string               `json:"label"`
	Style              *int                  `json:"style"`
	Emoji              *string               `json:"emoji"`
	CategoryID         *string               `json:"category_id"`
	ArchiveCategoryID  *string               `json:"archive_category_id"`
	SupportRoleIDs     []string              `json:"support_role_ids"`
	ViewerRoleIDs      []string              `json:"viewer_role_ids"`
	CloseBehavior      *closeBehaviorRequest `json:"close_behavior"`
	ArchiveBehavior    *closeBehaviorRequest `json:"archive_behavior"`
	AutoArchiveOnClose *bool                 `json:"auto_archive_on_close"`
	MaxActiveTickets   *int                  `json:"max_active_tickets"`
	AllowedPriorityIDs []int64               `json:"allowed_priority_ids"`
	DefaultPriorityID  *int64                `json:"default_priority_id"`
	SaveTranscript     *bool                 `json:"save_transcript"`
	OpeningMessage     *string               `json:"opening_message"`
	ChannelNameFormat  *string               `json:"channel_name_format"`
}

func (r *triggerUpdateRequest) toDomain() domain.TriggerUpdate {
	update := domain.TriggerUpdate{
		Label:              r.Label,
		Style:              r.Style,
		Emoji:              r.Emoji,
		CategoryID:         r.CategoryID,
		ArchiveCategoryID:  r.ArchiveCategoryID,
		SupportRoleIDs:     r.SupportRoleIDs,
		ViewerRoleIDs:      r.ViewerRoleIDs,
		AutoArchiveOnClose: r.AutoArchiveOnClose,
		MaxActiveTickets:   r.MaxActiveTickets,
		AllowedPriorityIDs: r.AllowedPriorityIDs,
		DefaultPriorityID:  r.DefaultPriorityID,
		SaveTranscript:     r.SaveTranscript,
		OpeningMessage:     r.OpeningMessage,
		ChannelNameFormat:  r.ChannelNameFormat,
	}
	if r.CloseBehavior != nil {
		behavior := r.CloseBehavior.toDomain()
		update.CloseBehavior = &behavior
	}
	if r.ArchiveBehavior != nil {
		behavior := r.ArchiveBehavior.toDomain()
		update.ArchiveBehavior = &behavior
	}
	return update
}

// ListPanels GET /panels?guild_id=...
func (h *PanelsHandler) ListPanels(c *fiber.Ctx) error {
	guildID := c.Query("guild_id")
	if guildID == "" {
		return apperrors.NewConfigInvalid("guild_id query parameter required")
	}
	panels, err := h.service.ListPanels(c.Context(), guildID)
	if err != nil {
		return err
	}
	items := make([]fiber.Map, 0, len(panels))
	for i := range panels {
		items = append(items, panelSummary(&panels[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreatePanel POST /panels.
func (h *PanelsHandler) CreatePanel(c *fiber.Ctx) error {
	var req createPanelRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewConfigInvalid("invalid payload")
	}
	if req.GuildID == "" || req.ChannelID == "" {
		return apperrors.NewConfigInvalid("guild_id and channel_id required")
	}
	panel, err := h.service.CreatePanel(c.Context(), req.GuildID, req.ChannelID, req.EmbedJSON)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": panelDetail(panel)})
}

// GetPanel GET /panels/:id.
func (h *PanelsHandler) GetPanel(c *fiber.Ctx) error {
	panelID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	panel, err := h.service.Panel(c.Context(), panelID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": panelDetail(panel)})
}

// DeletePanel DELETE /panels/:id?force=true.
func (h *PanelsHandler) DeletePanel(c *fiber.Ctx) error {
	panelID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	conflict, err := h.service.DeletePanel(c.Context(), panelID, c.QueryBool("force"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"detached_active":       len(conflict.Active),
		"detached_soft_deleted": len(conflict.SoftDeleted),
	}})
}

// AddButton POST /panels/:id/buttons.
func (h *PanelsHandler) AddButton(c *fiber.Ctx) error {
	panelID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req triggerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewConfigInvalid("invalid payload")
	}
	trigger := req.toDomain(panelID, nil)
	if err := h.service.AddButton(c.Context(), trigger); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": triggerSummary(trigger)})
}

// AddMenu POST /panels/:id/menus.
func (h *PanelsHandler) AddMenu(c *fiber.Ctx) error {
	panelID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req createMenuRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewConfigInvalid("invalid payload")
	}
	menu := &domain.SelectMenu{PanelID: panelID, Placeholder: req.Placeholder}
	if err := h.service.AddSelectMenu(c.Context(), menu); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
		"id":          menu.ID,
		"panel_id":    menu.PanelID,
		"placeholder": menu.Placeholder,
	}})
}

// AddOption POST /panels/:id/menus/:menuID/options.
func (h *PanelsHandler) AddOption(c *fiber.Ctx) error {
	panelID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	menuID, err := pathID(c, "menuID")
	if err != nil {
		return err
	}
	var req triggerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewConfigInvalid("invalid payload")
	}
	trigger := req.toDomain(panelID, &menuID)
	if err := h.service.AddSelectOption(c.Context(), trigger); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": triggerSummary(trigger)})
}

// UpdateTrigger PATCH /triggers/:kind/:id.
func (h *PanelsHandler) UpdateTrigger(c *fiber.Ctx) error {
	kind, err := triggerKind(c.Params("kind"))
	if err != nil {
		return err
	}
	triggerID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req triggerUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewConfigInvalid("invalid payload")
	}
	if err := h.service.UpdateTriggerSettings(c.Context(), kind, triggerID, req.toDomain()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": triggerID, "kind": kind}})
}

func pathID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewConfigInvalid(name + " must be a positive integer")
	}
	return id, nil
}

func triggerKind(raw string) (domain.TriggerKind, error) {
	switch raw {
	case "button":
		return domain.TriggerKindButton, nil
	case "option":
		return domain.TriggerKindSelectOption, nil
	default:
		return "", apperrors.NewConfigInvalid("kind must be button or option")
	}
}

func panelSummary(panel *domain.Panel) fiber.Map {
	return fiber.Map{
		"id":         panel.ID,
		"guild_id":   panel.GuildID,
		"channel_id": panel.ChannelID,
		"message_id": panel.MessageID,
		"created_at": panel.CreatedAt,
		"updated_at": panel.UpdatedAt,
	}
}

func panelDetail(panel *domain.Panel) fiber.Map {
	detail := panelSummary(panel)

	buttons := make([]fiber.Map, 0, len(panel.Buttons))
	for i := range panel.Buttons {
		buttons = append(buttons, triggerSummary(&panel.Buttons[i]))
	}
	detail["buttons"] = buttons

	menus := make([]fiber.Map, 0, len(panel.Menus))
	for _, menu := range panel.Menus {
		options := make([]fiber.Map, 0, len(menu.Options))
		for i := range menu.Options {
			options = append(options, triggerSummary(&menu.Options[i]))
		}
		menus = append(menus, fiber.Map{
			"id":          menu.ID,
			"placeholder": menu.Placeholder,
			"options":     options,
		})
	}
	detail["menus"] = menus
	return detail
}

func triggerSummary(trigger *domain.Trigger) fiber.Map {
	return fiber.Map{
		"id":                    trigger.ID,
		"panel_id":              trigger.PanelID,
		"kind":                  trigger.Kind,
		"label":                 trigger.Label,
		"emoji":                 trigger.Emoji,
		"max_active_tickets":    trigger.MaxActiveTickets,
		"save_transcript":       trigger.SaveTranscript,
		"auto_archive_on_close": trigger.AutoArchiveOnClose,
	}
}
