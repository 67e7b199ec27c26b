package domain

// Priority is a guild-scoped urgency level staff can assign to tickets.
type Priority struct {
	ID        int64
	GuildID   string
	Name      string
	Emoji     string
	Color     int
	Level     int
	PingStaff bool
}

// Tag is a guild-scoped label staff can attach to tickets.
type Tag struct {
	ID      int64
	GuildID string
	Name    string
	Emoji   string
	Color   int
}
