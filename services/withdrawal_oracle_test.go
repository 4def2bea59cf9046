package services

import (
	"testing"

	"github.com/fenilmodi00/ipo-sim-backend/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type staticTimelines map[string]*models.AcceleratedTimeline

func (s staticTimelines) Timeline(symbol string) (*models.AcceleratedTimeline, bool) {
	tl, ok := s[symbol]
	return tl, ok
}

func TestWithdrawalOracle(t *testing.T) {
	owner := uuid.New()
	tests := []struct {
		name     string
		phase    models.TimelinePhase
		user     uuid.UUID
		eligible bool
		reason   string
	}{
		{"applied", models.TimelineApplied, owner, false, "allotment pending"},
		{"allotted", models.TimelineAllotted, owner, false, "allotted, waiting for listing"},
		{"not allotted", models.TimelineNotAllotted, owner, true, "not allotted, funds can be released"},
		{"listed", models.TimelineListed, owner, true, "listed, holding can be sold"},
		{"closed", models.TimelineClosed, owner, false, "timeline closed"},
		{"other user", models.TimelineListed, uuid.New(), false, "unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := NewWithdrawalOracle(staticTimelines{
				"ALPHA": {Symbol: "ALPHA", UserID: owner, Phase: tt.phase},
			})

			got := oracle.CanWithdraw("ALPHA", tt.user)
			assert.Equal(t, tt.eligible, got.Eligible)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestWithdrawalOracleUntrackedSymbol(t *testing.T) {
	got := NewWithdrawalOracle(staticTimelines{}).CanWithdraw("NOPE", uuid.New())
	assert.True(t, got.Eligible)
	assert.Equal(t, "timeline not tracked", got.Reason)

	got = NewWithdrawalOracle(nil).CanWithdraw("NOPE", uuid.New())
	assert.True(t, got.Eligible)
}
