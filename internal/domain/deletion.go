package domain

import "time"

// ScheduledDeletion is a deferred cleanup job for a closed ticket's channel.
// Rows stay unprocessed across retries; the worker filters on Processed so a
// crash mid-batch cannot make a row run twice.
type ScheduledDeletion struct {
	ID            string
	TicketID      int64
	GuildID       string
	ChannelID     string
	ScheduledAt   time.Time
	ExecuteAt     time.Time
	Processed     bool
	RetryCount    int
	FailureReason *string
}
