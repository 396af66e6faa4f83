package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/flof/backend/internal/contracts"
)

const sec = int64(time.Second)

// recorder implements KillSwitch and Notifier, logging call order
type recorder struct {
	calls  []string
	events []contracts.Event
	failOn map[string]bool
}

func (r *recorder) do(name string) error {
	r.calls = append(r.calls, name)
	if r.failOn[name] {
		return errors.New(name + " failed")
	}
	return nil
}

func (r *recorder) CancelAllOrders() error     { return r.do("cancel") }
func (r *recorder) FlattenAllPositions() error { return r.do("flatten") }
func (r *recorder) ForceDormant() error        { return r.do("dormant") }
func (r *recorder) Publish(evt contracts.Event) {
	r.calls = append(r.calls, "publish")
	r.events = append(r.events, evt)
}
func (r *recorder) PublishSync(evt contracts.Event) {
	r.calls = append(r.calls, "publish_sync")
	r.events = append(r.events, evt)
}

func newOverlord(cfg Config) (*Overlord, *recorder, *[]int) {
	rec := &recorder{failOn: map[string]bool{}}
	var exits []int
	o := NewOverlord(cfg, rec, nil, WithNotifier(rec), WithExit(func(code int) { exits = append(exits, code) }))
	return o, rec, &exits
}

func TestCheckOKWhenQuiet(t *testing.T) {
	o, rec, _ := newOverlord(DefaultConfig())
	assert.Equal(t, CheckResult{Status: StatusOK}, o.Check(0))
	assert.Empty(t, rec.calls)
}

func TestThreeLossesFlattenExactlyOnce(t *testing.T) {
	o, rec, exits := newOverlord(DefaultConfig())
	o.RecordLoss()
	o.RecordLoss()
	o.RecordLoss()

	res := o.Check(10 * sec)
	assert.Equal(t, StatusBreach, res.Status)
	assert.Equal(t, PillarConsecutiveLosses, res.Pillar)
	assert.True(t, o.IsFlattened())
	assert.Equal(t, []string{"cancel", "flatten", "publish_sync", "dormant"}, rec.calls)
	assert.Empty(t, *exits, "simulation mode never exits")

	require.Len(t, rec.events, 1)
	evt := rec.events[0]
	assert.Equal(t, contracts.EventRiskLimitBreached, evt.Type)
	assert.Equal(t, PillarConsecutiveLosses, evt.Payload["reason"])
	assert.Equal(t, 10*sec, evt.TimestampNs)
	assert.NotEmpty(t, evt.ID)

	// second check: distinct status, no re-run
	res = o.Check(11 * sec)
	assert.Equal(t, StatusFlattened, res.Status)
	assert.Empty(t, res.Pillar)
	assert.Len(t, rec.calls, 4)
}

func TestResetDailyClearsFlattenAndLosses(t *testing.T) {
	o, _, _ := newOverlord(DefaultConfig())
	o.RecordLoss()
	o.RecordLoss()
	o.RecordLoss()
	o.Check(0)
	require.True(t, o.IsFlattened())

	o.ResetDaily()

	assert.False(t, o.IsFlattened())
	assert.Equal(t, 0, o.Snapshot().ConsecutiveLosses)
	assert.Equal(t, StatusOK, o.Check(sec).Status)
}

func TestPillarOrder(t *testing.T) {
	tests := []struct {
		name  string
		setup func(o *Overlord)
		now   int64
		want  string
	}{
		{
			name: "anti spam first",
			setup: func(o *Overlord) {
				for i := int64(0); i < 4; i++ {
					o.RecordOrder(i * sec)
				}
				o.UpdatePositions(10)
				o.UpdateDailyPnL(-0.5)
			},
			now:  5 * sec,
			want: PillarAntiSpam,
		},
		{
			name: "fat finger before drawdown",
			setup: func(o *Overlord) {
				o.UpdatePositions(4)
				o.UpdateDailyPnL(-0.5)
			},
			want: PillarFatFinger,
		},
		{
			name: "drawdown before losses",
			setup: func(o *Overlord) {
				o.UpdateDailyPnL(-0.03)
				o.RecordLoss()
				o.RecordLoss()
				o.RecordLoss()
			},
			want: PillarDailyDrawdown,
		},
		{
			name: "losses before stale",
			setup: func(o *Overlord) {
				o.RecordLoss()
				o.RecordLoss()
				o.RecordLoss()
				o.OnStaleDataAlert(0)
			},
			now:  10 * sec,
			want: PillarConsecutiveLosses,
		},
		{
			name:  "stale data countdown",
			setup: func(o *Overlord) { o.OnStaleDataAlert(0) },
			now:   5 * sec,
			want:  PillarStaleData,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _, _ := newOverlord(DefaultConfig())
			tt.setup(o)
			res := o.Check(tt.now)
			assert.Equal(t, StatusBreach, res.Status)
			assert.Equal(t, tt.want, res.Pillar)
		})
	}
}

func TestAntiSpamTrailingMinute(t *testing.T) {
	o, _, _ := newOverlord(DefaultConfig())
	for _, ts := range []int64{0, 10 * sec, 20 * sec, 30 * sec} {
		o.RecordOrder(ts)
	}
	// at 60s the order at 0 is exactly one minute old and drops out
	assert.Equal(t, StatusOK, o.Check(60*sec).Status)
	assert.Equal(t, 3, o.Snapshot().RecentOrders)

	o.RecordOrder(61 * sec)
	assert.Equal(t, PillarAntiSpam, o.Check(61*sec).Pillar)
}

func TestStaleCountdown(t *testing.T) {
	o, _, _ := newOverlord(DefaultConfig())
	o.OnStaleDataAlert(10 * sec)
	o.OnStaleDataAlert(12 * sec) // first alert wins

	assert.Equal(t, StatusOK, o.Check(14*sec).Status)

	o.ClearStaleAlert()
	assert.Equal(t, StatusOK, o.Check(20*sec).Status)

	o.OnStaleDataAlert(20 * sec)
	assert.Equal(t, PillarStaleData, o.Check(25*sec).Pillar)
}

func TestFlattenContinuesAfterKillSwitchErrors(t *testing.T) {
	o, rec, _ := newOverlord(DefaultConfig())
	rec.failOn["cancel"] = true
	rec.failOn["flatten"] = true
	o.UpdatePositions(9)

	res := o.Check(0)
	assert.Equal(t, StatusBreach, res.Status)
	assert.Equal(t, []string{"cancel", "flatten", "publish_sync", "dormant"}, rec.calls, "no retries, no skipped steps")
}

func TestLiveModeExits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LiveMode = true
	o, rec, exits := newOverlord(cfg)
	o.UpdateDailyPnL(-0.04)

	o.Check(0)
	assert.Equal(t, []int{1}, *exits)
	assert.Equal(t, "dormant", rec.calls[len(rec.calls)-1], "exit comes after the full sequence")
}

func TestNilKillSwitchStillFlattens(t *testing.T) {
	o := NewOverlord(DefaultConfig(), nil, nil)
	o.UpdateDailyPnL(-0.04)
	assert.Equal(t, StatusBreach, o.Check(0).Status)
	assert.True(t, o.IsFlattened())
}
