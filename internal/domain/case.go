package domain

import "time"

// Case groups tickets under one investigation with its own lifecycle.
type Case struct {
	ID          string
	GuildID     string
	Title       string
	Description string
	CreatorID   string
	TicketIDs   []int64
	Notes       []CaseNote
	CreatedAt   time.Time
	ClosedAt    *time.Time
}

// Open reports whether the case has not been closed.
func (c *Case) Open() bool {
	return c.ClosedAt == nil
}

// CaseNote is a free-form annotation on a case.
type CaseNote struct {
	ID        string
	CaseID    string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}
