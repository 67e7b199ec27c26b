package domain

import "time"

// TriggerKind distinguishes the two trigger variants a panel can expose.
type TriggerKind string

const (
	TriggerKindButton       TriggerKind = "BUTTON"
	TriggerKindSelectOption TriggerKind = "SELECT_OPTION"
)

// Panel is a persistent message exposing interactive triggers.
type Panel struct {
	ID        int64
	GuildID   string
	ChannelID string
	MessageID string
	// EmbedJSON is the serialized embed definition handed to the opaque
	// message formatter when the panel is published or re-rendered.
	EmbedJSON string
	Buttons   []Trigger
	Menus     []SelectMenu
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SelectMenu groups ordered select options under one panel component.
type SelectMenu struct {
	ID          int64
	PanelID     int64
	Placeholder string
	Position    int
	Options     []Trigger
}

// Trigger is a Button or SelectOption definition with its own behavior
// configuration. Both variants share this field set; Kind tells them apart.
type Trigger struct {
	ID      int64
	PanelID int64
	MenuID  *int64
	Kind    TriggerKind

	Label    string
	Style    int
	Emoji    string
	Position int

	CategoryID        *string
	ArchiveCategoryID *string
	SupportRoleIDs    []string
	ViewerRoleIDs     []string

	CloseBehavior      CloseBehavior
	ArchiveBehavior    CloseBehavior
	AutoArchiveOnClose bool

	AutoCloseAfter       *time.Duration
	RequiredResponseTime *time.Duration

	MaxActiveTickets   *int
	AllowedPriorityIDs []int64
	DefaultPriorityID  *int64

	SaveTranscript    bool
	FormFieldsJSON    *string
	OpeningMessage    *string
	ChannelNameFormat string
}

// CloseBehavior is the per-trigger override slice of close/archive handling.
// Nil pointer fields fall through to guild settings, then built-ins.
type CloseBehavior struct {
	Delete        *bool
	Lock          *bool
	Rename        *bool
	RemoveCreator *bool
	DeleteDelay   *time.Duration
}

// TriggerUpdate enumerates every mutable trigger field so updates are
// checked at compile time instead of going through name/value maps.
//
// A nil field leaves the stored value untouched. For nullable columns a
// pointer to the zero value clears the stored value. Slice fields replace
// the stored set wholesale when non-nil.
type TriggerUpdate struct {
	Label                *string
	Style                *int
	Emoji                *string
	CategoryID           *string
	ArchiveCategoryID    *string
	SupportRoleIDs       []string
	ViewerRoleIDs        []string
	CloseBehavior        *CloseBehavior
	ArchiveBehavior      *CloseBehavior
	AutoArchiveOnClose   *bool
	AutoCloseAfter       *time.Duration
	RequiredResponseTime *time.Duration
	MaxActiveTickets     *int
	AllowedPriorityIDs   []int64
	DefaultPriorityID    *int64
	SaveTranscript       *bool
	FormFieldsJSON       *string
	OpeningMessage       *string
	ChannelNameFormat    *string
}
