package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	assert.True(t, StatusPending.CanAdvanceTo(StatusAllotted))
	assert.True(t, StatusPending.CanAdvanceTo(StatusNotAllotted))
	assert.True(t, StatusAllotted.CanAdvanceTo(StatusListed))
	assert.True(t, StatusListed.CanAdvanceTo(StatusRefunded))

	assert.False(t, StatusPending.CanAdvanceTo(StatusListed))
	assert.False(t, StatusListed.CanAdvanceTo(StatusAllotted))
	assert.False(t, StatusRefunded.CanAdvanceTo(StatusListed))
	assert.False(t, StatusAllotted.CanAdvanceTo(StatusAllotted))

	for _, next := range []ApplicationStatus{StatusPending, StatusAllotted, StatusListed, StatusRefunded, StatusNotAllotted} {
		assert.False(t, StatusNotAllotted.CanAdvanceTo(next), "not_allotted is absorbing")
	}
}

func TestBlockedAmount(t *testing.T) {
	app := &Application{RefundMode: RefundImmediate, AmountApplied: 10000, RefundAmount: 7500, Status: StatusPending}
	assert.Equal(t, 10000.0, app.BlockedAmount())

	app.Status = StatusAllotted
	assert.Equal(t, 2500.0, app.BlockedAmount())

	app.RefundMode = RefundFullBlock
	assert.Equal(t, 10000.0, app.BlockedAmount())

	app.Withdrawn = true
	assert.Equal(t, 0.0, app.BlockedAmount())
}

func TestInvestedValueFollowsMode(t *testing.T) {
	app := &Application{AmountApplied: 10000, AmountAllotted: 2500}

	app.RefundMode = RefundFullBlock
	assert.Equal(t, 10000.0, app.InvestedValue())

	app.RefundMode = RefundImmediate
	assert.Equal(t, 2500.0, app.InvestedValue())
}

func TestCloneDetachesPointers(t *testing.T) {
	price := 110.0
	app := &Application{ListingPrice: &price}
	c := app.Clone()
	*c.ListingPrice = 1

	assert.Equal(t, 110.0, *app.ListingPrice)
}

func TestPhaseForStatus(t *testing.T) {
	assert.Equal(t, TimelineApplied, PhaseForStatus(StatusPending))
	assert.Equal(t, TimelineAllotted, PhaseForStatus(StatusAllotted))
	assert.Equal(t, TimelineNotAllotted, PhaseForStatus(StatusNotAllotted))
	assert.Equal(t, TimelineListed, PhaseForStatus(StatusListed))
	assert.Equal(t, TimelineClosed, PhaseForStatus(StatusRefunded))
}
