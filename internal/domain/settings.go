package domain

import "time"

// GuildTicketSettings holds guild-wide fallbacks applied when a trigger
// does not override a behavior itself.
type GuildTicketSettings struct {
	GuildID string

	CloseBehavior *CloseBehavior

	NotifySupportRoles bool
	NotifyMembersDM    bool

	Blacklist []string

	TranscriptChannelID *string
	LogChannelID        *string

	UpdatedAt time.Time
}

// Blacklisted reports whether the user is barred from opening tickets.
func (s *GuildTicketSettings) Blacklisted(userID string) bool {
	if s == nil {
		return false
	}
	for _, id := range s.Blacklist {
		if id == userID {
			return true
		}
	}
	return false
}
