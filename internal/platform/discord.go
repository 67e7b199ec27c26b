package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// Discord implements Client on top of a discordgo session.
type Discord struct {
	session   *discordgo.Session
	formatter EmbedFormatter
	botUserID string
}

// NewDiscord wraps an opened session.
func NewDiscord(session *discordgo.Session, formatter EmbedFormatter) (*Discord, error) {
	if session == nil {
		return nil, errors.New("nil session")
	}
	botID := ""
	if session.State != nil && session.State.User != nil {
		botID = session.State.User.ID
	}
	if botID == "" {
		me, err := session.User("@me")
		if err != nil {
			return nil, fmt.Errorf("resolve bot user: %w", err)
		}
		botID = me.ID
	}
	if formatter == nil {
		formatter = JSONEmbedFormatter{}
	}
	return &Discord{session: session, formatter: formatter, botUserID: botID}, nil
}

// BotUserID returns the bot's own user id.
func (d *Discord) BotUserID() string {
	return d.botUserID
}

func (d *Discord) CreateChannel(ctx context.Context, guildID string, create ChannelCreate) (string, error) {
	overwrites := make([]*discordgo.PermissionOverwrite, 0, len(create.Overlays))
	for _, o := range create.Overlays {
		overwrites = append(overwrites, toOverwrite(o))
	}
	ch, err := d.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 create.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                create.Topic,
		ParentID:             create.ParentID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

func (d *Discord) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := d.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return err
}

func (d *Discord) RenameChannel(ctx context.Context, channelID, name string) error {
	_, err := d.session.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx))
	return err
}

func (d *Discord) MoveChannel(ctx context.Context, channelID, parentID string) error {
	_, err := d.session.ChannelEdit(channelID, &discordgo.ChannelEdit{ParentID: parentID}, discordgo.WithContext(ctx))
	return err
}

func (d *Discord) SetOverlays(ctx context.Context, channelID string, overlays []PermissionOverlay) error {
	for _, o := range overlays {
		overwriteType := discordgo.PermissionOverwriteTypeRole
		if o.Type == OverlayMember {
			overwriteType = discordgo.PermissionOverwriteTypeMember
		}
		if err := d.session.ChannelPermissionSet(channelID, o.TargetID, overwriteType, o.Allow, o.Deny, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Discord) RemoveOverlay(ctx context.Context, channelID, targetID string) error {
	return d.session.ChannelPermissionDelete(channelID, targetID, discordgo.WithContext(ctx))
}

func (d *Discord) SendMessage(ctx context.Context, channelID string, msg Message) (string, error) {
	send, err := d.buildSend(msg)
	if err != nil {
		return "", err
	}
	sent, err := d.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return sent.ID, nil
}

func (d *Discord) EditMessage(ctx context.Context, channelID, messageID string, msg Message) error {
	send, err := d.buildSend(msg)
	if err != nil {
		return err
	}
	edit := discordgo.NewMessageEdit(channelID, messageID)
	edit.Content = &send.Content
	edit.Embeds = &send.Embeds
	edit.Components = &send.Components
	_, err = d.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return err
}

func (d *Discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return d.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

func (d *Discord) SendDirectMessage(ctx context.Context, userID string, msg Message) error {
	dm, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	_, err = d.SendMessage(ctx, dm.ID, msg)
	return err
}

func (d *Discord) UploadFile(ctx context.Context, channelID, filename string, data []byte, content string) (string, error) {
	sent, err := d.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
		Files: []*discordgo.File{{
			Name:        filename,
			ContentType: "application/json",
			Reader:      bytes.NewReader(data),
		}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return sent.ID, nil
}

const historyPageSize = 100

// ChannelHistory pages through the full channel history and returns it
// oldest first.
func (d *Discord) ChannelHistory(ctx context.Context, channelID string) ([]HistoryMessage, error) {
	var all []HistoryMessage
	beforeID := ""
	for {
		page, err := d.session.ChannelMessages(channelID, historyPageSize, beforeID, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			all = append(all, toHistoryMessage(m))
		}
		beforeID = page[len(page)-1].ID
		if len(page) < historyPageSize {
			break
		}
	}
	// pages arrive newest first
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

func (d *Discord) ChannelName(ctx context.Context, channelID string) (string, error) {
	ch, err := d.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return ch.Name, nil
}

func (d *Discord) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	member, err := d.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return member.Roles, nil
}

// RoleMembers pages through the guild member list and returns the ids of
// members holding the role.
func (d *Discord) RoleMembers(ctx context.Context, guildID, roleID string) ([]string, error) {
	var ids []string
	afterID := ""
	for {
		page, err := d.session.GuildMembers(guildID, afterID, 1000, discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, member := range page {
			for _, id := range member.Roles {
				if id == roleID {
					ids = append(ids, member.User.ID)
					break
				}
			}
		}
		afterID = page[len(page)-1].User.ID
		if len(page) < 1000 {
			break
		}
	}
	return ids, nil
}

// IsAdmin reports whether the user owns the guild or carries a role with the
// administrator bit.
func (d *Discord) IsAdmin(ctx context.Context, guildID, userID string) (bool, error) {
	guild, err := d.session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, err
	}
	if guild.OwnerID == userID {
		return true, nil
	}

	member, err := d.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return false, err
	}
	roles, err := d.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, err
	}
	held := make(map[string]struct{}, len(member.Roles))
	for _, id := range member.Roles {
		held[id] = struct{}{}
	}
	for _, role := range roles {
		if _, ok := held[role.ID]; !ok {
			continue
		}
		if role.Permissions&discordgo.PermissionAdministrator != 0 {
			return true, nil
		}
	}
	return false, nil
}

func (d *Discord) buildSend(msg Message) (*discordgo.MessageSend, error) {
	send := &discordgo.MessageSend{Content: msg.Content}
	if msg.EmbedJSON != "" {
		embeds, err := d.formatter.Render(msg.EmbedJSON)
		if err != nil {
			return nil, fmt.Errorf("render embed: %w", err)
		}
		send.Embeds = embeds
	}
	for _, row := range msg.Components {
		send.Components = append(send.Components, toActionsRow(row))
	}
	return send, nil
}

func toActionsRow(row ComponentRow) discordgo.MessageComponent {
	actions := discordgo.ActionsRow{}
	if row.Menu != nil {
		menu := discordgo.SelectMenu{
			MenuType:    discordgo.StringSelectMenu,
			CustomID:    row.Menu.CustomID,
			Placeholder: row.Menu.Placeholder,
		}
		for _, opt := range row.Menu.Options {
			option := discordgo.SelectMenuOption{
				Label:       opt.Label,
				Value:       opt.Value,
				Description: opt.Description,
			}
			if opt.Emoji != "" {
				option.Emoji = &discordgo.ComponentEmoji{Name: opt.Emoji}
			}
			menu.Options = append(menu.Options, option)
		}
		actions.Components = append(actions.Components, menu)
		return actions
	}
	for _, b := range row.Buttons {
		button := discordgo.Button{
			Label:    b.Label,
			Style:    discordgo.ButtonStyle(b.Style),
			CustomID: b.CustomID,
		}
		if b.Emoji != "" {
			button.Emoji = &discordgo.ComponentEmoji{Name: b.Emoji}
		}
		actions.Components = append(actions.Components, button)
	}
	return actions
}

func toOverwrite(o PermissionOverlay) *discordgo.PermissionOverwrite {
	overwriteType := discordgo.PermissionOverwriteTypeRole
	if o.Type == OverlayMember {
		overwriteType = discordgo.PermissionOverwriteTypeMember
	}
	return &discordgo.PermissionOverwrite{
		ID:    o.TargetID,
		Type:  overwriteType,
		Allow: o.Allow,
		Deny:  o.Deny,
	}
}

func toHistoryMessage(m *discordgo.Message) HistoryMessage {
	hm := HistoryMessage{
		ID:         m.ID,
		Content:    m.Content,
		EmbedCount: len(m.Embeds),
		Timestamp:  m.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if m.Author != nil {
		hm.AuthorID = m.Author.ID
		hm.AuthorName = m.Author.Username
		hm.Bot = m.Author.Bot
	}
	for _, a := range m.Attachments {
		hm.Attachments = append(hm.Attachments, HistoryAttachment{
			ID:          a.ID,
			URL:         a.URL,
			Name:        a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return hm
}

// IsNotFound reports whether the platform answered 404, meaning the target
// is already gone.
func IsNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}
