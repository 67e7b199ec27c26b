package service

import (
	"github.com/ticketforge/ticket-bot/internal/domain"
	"github.com/ticketforge/ticket-bot/internal/platform"
)

const (
	creatorAllow = platform.PermView | platform.PermSend | platform.PermHistory | platform.PermAttach | platform.PermEmbed
	supportAllow = platform.PermView | platform.PermSend | platform.PermHistory | platform.PermAttach | platform.PermEmbed
	viewerAllow  = platform.PermView | platform.PermHistory
)

// PermissionProjector computes per-channel access-control overlays for
// ticket channels. It is pure: callers apply the result through the
// platform client.
type PermissionProjector struct{}

// Baseline is the overlay set for a freshly opened ticket: default-deny
// for the guild at large, full access for the creator and support roles,
// read-only access for viewer roles, and the bot itself.
func (PermissionProjector) Baseline(guildID, botID, creatorID string, trigger *domain.Trigger) []platform.PermissionOverlay {
	// the @everyone role shares the guild's id
	overlays := []platform.PermissionOverlay{
		{TargetID: guildID, Type: platform.OverlayRole, Deny: platform.PermView},
		{TargetID: creatorID, Type: platform.OverlayMember, Allow: creatorAllow},
		{TargetID: botID, Type: platform.OverlayMember, Allow: supportAllow},
	}
	if trigger != nil {
		for _, roleID := range trigger.SupportRoleIDs {
			overlays = append(overlays, platform.PermissionOverlay{
				TargetID: roleID,
				Type:     platform.OverlayRole,
				Allow:    supportAllow,
			})
		}
		for _, roleID := range trigger.ViewerRoleIDs {
			overlays = append(overlays, platform.PermissionOverlay{
				TargetID: roleID,
				Type:     platform.OverlayRole,
				Allow:    viewerAllow,
				Deny:     platform.PermSend,
			})
		}
	}
	return overlays
}

// Locked revokes the creator's write access while re-granting support
// roles read/write, used when a ticket is closed without deletion.
func (p PermissionProjector) Locked(guildID, botID, creatorID string, trigger *domain.Trigger, removeCreator bool) []platform.PermissionOverlay {
	overlays := []platform.PermissionOverlay{
		{TargetID: guildID, Type: platform.OverlayRole, Deny: platform.PermView},
		{TargetID: botID, Type: platform.OverlayMember, Allow: supportAllow},
	}
	if !removeCreator {
		overlays = append(overlays, platform.PermissionOverlay{
			TargetID: creatorID,
			Type:     platform.OverlayMember,
			Allow:    viewerAllow,
			Deny:     platform.PermSend,
		})
	}
	if trigger != nil {
		for _, roleID := range trigger.SupportRoleIDs {
			overlays = append(overlays, platform.PermissionOverlay{
				TargetID: roleID,
				Type:     platform.OverlayRole,
				Allow:    supportAllow,
			})
		}
		for _, roleID := range trigger.ViewerRoleIDs {
			overlays = append(overlays, platform.PermissionOverlay{
				TargetID: roleID,
				Type:     platform.OverlayRole,
				Allow:    viewerAllow,
				Deny:     platform.PermSend,
			})
		}
	}
	return overlays
}
