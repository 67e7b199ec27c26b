package service

import (
	"time"

	"github.com/ticketforge/ticket-bot/internal/domain"
)

// ResolvedCloseBehavior is the fully-decided close handling for one ticket,
// after the trigger override, guild default and built-in fallback have been
// folded together.
type ResolvedCloseBehavior struct {
	Delete        bool
	Lock          bool
	Rename        bool
	RemoveCreator bool
	DeleteDelay   time.Duration
}

// resolveCloseBehavior folds the precedence chain. The chain is always
// trigger override, then guild default, then built-in: lock=true,
// rename=true, removeCreator=true, delete=false, delay as configured.
func resolveCloseBehavior(trigger *domain.CloseBehavior, guild *domain.CloseBehavior, builtinDelay time.Duration) ResolvedCloseBehavior {
	resolved := ResolvedCloseBehavior{
		Delete:        false,
		Lock:          true,
		Rename:        true,
		RemoveCreator: true,
		DeleteDelay:   builtinDelay,
	}
	apply := func(b *domain.CloseBehavior) {
		if b == nil {
			return
		}
		if b.Delete != nil {
			resolved.Delete = *b.Delete
		}
		if b.Lock != nil {
			resolved.Lock = *b.Lock
		}
		if b.Rename != nil {
			resolved.Rename = *b.Rename
		}
		if b.RemoveCreator != nil {
			resolved.RemoveCreator = *b.RemoveCreator
		}
		if b.DeleteDelay != nil {
			resolved.DeleteDelay = *b.DeleteDelay
		}
	}
	// guild first so the trigger override wins
	apply(guild)
	apply(trigger)
	return resolved
}
