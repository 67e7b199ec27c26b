package platform

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// OverlayType distinguishes role and member permission overlays.
type OverlayType int

const (
	OverlayRole OverlayType = iota
	OverlayMember
)

// Permission bits used by the projector. Values are the platform's own.
const (
	PermView    = discordgo.PermissionViewChannel
	PermSend    = discordgo.PermissionSendMessages
	PermHistory = discordgo.PermissionReadMessageHistory
	PermAttach  = discordgo.PermissionAttachFiles
	PermEmbed   = discordgo.PermissionEmbedLinks
)

// PermissionOverlay is one per-role or per-user access-control entry on a
// channel.
type PermissionOverlay struct {
	TargetID string
	Type     OverlayType
	Allow    int64
	Deny     int64
}

// ChannelCreate describes a new guild channel.
type ChannelCreate struct {
	Name     string
	ParentID string
	Topic    string
	Overlays []PermissionOverlay
}

// Button is an interactive button attached to a message.
type Button struct {
	CustomID string
	Label    string
	Emoji    string
	Style    int
}

// SelectOption is one entry of a select menu.
type SelectOption struct {
	Value       string
	Label       string
	Description string
	Emoji       string
}

// SelectMenu is a dropdown component.
type SelectMenu struct {
	CustomID    string
	Placeholder string
	Options     []SelectOption
}

// ComponentRow is one action row: up to five buttons, or a single menu.
type ComponentRow struct {
	Buttons []Button
	Menu    *SelectMenu
}

// Message is an outbound rich message.
type Message struct {
	Content    string
	EmbedJSON  string
	Components []ComponentRow
}

// HistoryMessage is one message of a channel's history, oldest first when
// returned from ChannelHistory.
type HistoryMessage struct {
	ID          string
	AuthorID    string
	AuthorName  string
	Bot         bool
	Content     string
	Attachments []HistoryAttachment
	EmbedCount  int
	Timestamp   string
}

// HistoryAttachment is attachment metadata captured in a transcript.
type HistoryAttachment struct {
	ID          string
	URL         string
	Name        string
	ContentType string
	Size        int
}

// Client is the guild-scoped messaging platform surface the services use.
// The discordgo session implements it; tests use fakes.
type Client interface {
	CreateChannel(ctx context.Context, guildID string, create ChannelCreate) (channelID string, err error)
	DeleteChannel(ctx context.Context, channelID string) error
	RenameChannel(ctx context.Context, channelID, name string) error
	MoveChannel(ctx context.Context, channelID, parentID string) error
	SetOverlays(ctx context.Context, channelID string, overlays []PermissionOverlay) error
	RemoveOverlay(ctx context.Context, channelID, targetID string) error

	SendMessage(ctx context.Context, channelID string, msg Message) (messageID string, err error)
	EditMessage(ctx context.Context, channelID, messageID string, msg Message) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SendDirectMessage(ctx context.Context, userID string, msg Message) error
	UploadFile(ctx context.Context, channelID, filename string, data []byte, content string) (messageID string, err error)

	ChannelHistory(ctx context.Context, channelID string) ([]HistoryMessage, error)
	ChannelName(ctx context.Context, channelID string) (string, error)
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
	RoleMembers(ctx context.Context, guildID, roleID string) ([]string, error)
	IsAdmin(ctx context.Context, guildID, userID string) (bool, error)
	BotUserID() string
}
