package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ticketforge/ticket-bot/internal/domain"
)

func boolPtr(b bool) *bool { return &b }

func durPtr(d time.Duration) *time.Duration { return &d }

func TestResolveCloseBehavior(t *testing.T) {
	builtin := 5 * time.Minute

	tests := []struct {
		name    string
		trigger *domain.CloseBehavior
		guild   *domain.CloseBehavior
		want    ResolvedCloseBehavior
	}{
		{
			name: "built-ins when nothing configured",
			want: ResolvedCloseBehavior{Lock: true, Rename: true, RemoveCreator: true, DeleteDelay: builtin},
		},
		{
			name:  "guild default fills the gap",
			guild: &domain.CloseBehavior{Delete: boolPtr(true), DeleteDelay: durPtr(time.Hour)},
			want:  ResolvedCloseBehavior{Delete: true, Lock: true, Rename: true, RemoveCreator: true, DeleteDelay: time.Hour},
		},
		{
			name:    "trigger override wins over guild",
			trigger: &domain.CloseBehavior{Delete: boolPtr(false), Rename: boolPtr(false)},
			guild:   &domain.CloseBehavior{Delete: boolPtr(true), Lock: boolPtr(false)},
			want:    ResolvedCloseBehavior{Delete: false, Lock: false, Rename: false, RemoveCreator: true, DeleteDelay: builtin},
		},
		{
			name:    "partial trigger leaves other fields to guild",
			trigger: &domain.CloseBehavior{DeleteDelay: durPtr(30 * time.Minute)},
			guild:   &domain.CloseBehavior{RemoveCreator: boolPtr(false), DeleteDelay: durPtr(time.Hour)},
			want:    ResolvedCloseBehavior{Lock: true, Rename: true, RemoveCreator: false, DeleteDelay: 30 * time.Minute},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveCloseBehavior(tt.trigger, tt.guild, builtin)
			require.Equal(t, tt.want, got)
		})
	}
}
