package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wonny/flof/backend/internal/contracts"
)

func TestClassifyPriority(t *testing.T) {
	c := NewSuddenMoveClassifier(DefaultSuddenMoveConfig())
	unhealthy := &contracts.HealthReport{Healthy: false}
	healthy := &contracts.HealthReport{Healthy: true}

	tests := []struct {
		name string
		in   SuddenMoveInput
		want contracts.SuddenMoveType
	}{
		{
			name: "infra beats everything",
			in:   SuddenMoveInput{Health: unhealthy, HasCalendarEvent: true, TapeVelocityPct: 900, SpreadCurrent: 10, SpreadBaseline: 1},
			want: contracts.SuddenMoveTypeC,
		},
		{
			name: "calendar event with fast tape",
			in:   SuddenMoveInput{Health: healthy, HasCalendarEvent: true, TapeVelocityPct: 401, SpreadCurrent: 10, SpreadBaseline: 1},
			want: contracts.SuddenMoveTypeA,
		},
		{
			name: "calendar event with normal tape",
			in:   SuddenMoveInput{HasCalendarEvent: true, TapeVelocityPct: 400},
			want: contracts.SuddenMoveNone,
		},
		{
			name: "cascade needs spread blowout",
			in:   SuddenMoveInput{TapeVelocityPct: 500, SpreadCurrent: 3.1, SpreadBaseline: 1},
			want: contracts.SuddenMoveTypeB,
		},
		{
			name: "spread at quarantine multiple is not a cascade",
			in:   SuddenMoveInput{TapeVelocityPct: 500, SpreadCurrent: 3, SpreadBaseline: 1},
			want: contracts.SuddenMoveNone,
		},
		{
			name: "no baseline",
			in:   SuddenMoveInput{TapeVelocityPct: 500, SpreadCurrent: 3},
			want: contracts.SuddenMoveNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.in))
		})
	}
}

func TestResponseTable(t *testing.T) {
	assert.Equal(t, 180*time.Second, ResponseFor(contracts.SuddenMoveTypeA).Cooldown)
	assert.Equal(t, 0.5, ResponseFor(contracts.SuddenMoveTypeB).SizeMultiplier)
	assert.Equal(t, "full_shutdown", ResponseFor(contracts.SuddenMoveTypeC).Action)
	assert.Equal(t, 1.0, ResponseFor(contracts.SuddenMoveNone).SizeMultiplier)
}
