package gateway

import "github.com/bwmarrin/discordgo"

// Commands returns the slash command set the bot registers on startup.
func Commands() []*discordgo.ApplicationCommand {
	idOption := func(desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "id",
			Description: desc,
			Required:    true,
		}
	}
	caseIDOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "case_id",
		Description: "Case identifier",
		Required:    true,
	}

	return []*discordgo.ApplicationCommand{
		{Name: "claim", Description: "Claim the ticket in this channel"},
		{Name: "unclaim", Description: "Release your claim on this ticket"},
		{
			Name:        "close",
			Description: "Close the ticket in this channel",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "archive",
				Description: "Archive the ticket instead of scheduling deletion",
			}},
		},
		{Name: "archive", Description: "Archive the ticket in this channel"},
		{Name: "reopen", Description: "Reopen a closed ticket"},
		{Name: "priority", Description: "Set the ticket priority", Options: []*discordgo.ApplicationCommandOption{idOption("Priority identifier")}},
		{Name: "tag", Description: "Add a tag to the ticket", Options: []*discordgo.ApplicationCommandOption{idOption("Tag identifier")}},
		{Name: "untag", Description: "Remove a tag from the ticket", Options: []*discordgo.ApplicationCommandOption{idOption("Tag identifier")}},
		{
			Name:        "note",
			Description: "Record a staff note on this ticket",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "body",
				Description: "Note text",
				Required:    true,
			}},
		},
		{
			Name:        "case",
			Description: "Manage cases that group related tickets",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "create",
					Description: "Open a new case",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "title", Description: "Case title", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "description", Description: "Case description"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "link",
					Description: "Link this channel's ticket to a case",
					Options:     []*discordgo.ApplicationCommandOption{caseIDOption},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "unlink",
					Description: "Unlink this channel's ticket from a case",
					Options:     []*discordgo.ApplicationCommandOption{caseIDOption},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "close",
					Description: "Close a case and its open tickets",
					Options: []*discordgo.ApplicationCommandOption{
						caseIDOption,
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "archive", Description: "Archive linked tickets instead of plain close"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "reopen",
					Description: "Reopen a closed case",
					Options:     []*discordgo.ApplicationCommandOption{caseIDOption},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "note",
					Description: "Add a note to a case",
					Options: []*discordgo.ApplicationCommandOption{
						caseIDOption,
						{Type: discordgo.ApplicationCommandOptionString, Name: "body", Description: "Note text", Required: true},
					},
				},
			},
		},
	}
}

// RegisterCommands overwrites the application command set. An empty guildID
// registers the commands globally.
func RegisterCommands(session *discordgo.Session, guildID string) error {
	_, err := session.ApplicationCommandBulkOverwrite(session.State.User.ID, guildID, Commands())
	return err
}
