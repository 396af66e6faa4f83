package strategyconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeLayers creates base/profile/instrument files in a temp dir and returns the base path
func writeLayers(t *testing.T, base, profile, instrument string) string {
	t.Helper()
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.yaml")
	require.NoError(t, os.WriteFile(basePath, []byte(base), 0o644))

	if profile != "" {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "profiles"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "profiles", "profile_test.yaml"), []byte(profile), 0o644))
	}
	if instrument != "" {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "instruments"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "instruments", "NQ.yaml"), []byte(instrument), 0o644))
	}
	return basePath
}

const baseYAML = `
system:
  instrument: ES
trade:
  phase1_target_r: 3.0
  point_value: 50
toggles:
  risk:
    T18_conditional_tape_failure: true
`

func TestLoadLayersLastWins(t *testing.T) {
	basePath := writeLayers(t, baseYAML,
		"trade:\n  phase1_target_r: 2.5\n",
		"system:\n  instrument: NQ\ntrade:\n  point_value: 20\n",
	)

	m := NewManager(false, nil)
	require.NoError(t, m.Load(Layers{Base: basePath, Profile: "test", Instrument: "NQ"}))

	cfg := m.Config()
	assert.Equal(t, 2.5, cfg.Trade.Phase1TargetR, "profile overrides base")
	assert.Equal(t, 20.0, cfg.Trade.PointValue, "instrument overrides base")
	assert.Equal(t, "NQ", cfg.System.Instrument)

	// 기본값은 병합 트리에도 존재
	assert.Equal(t, 0.33, cfg.Trade.APlusPartialPct)
	assert.Equal(t, 12, m.GetInt("scoring.thresholds.a_min", 0))
	assert.Equal(t, 2.5, m.GetFloat("trade.phase1_target_r", 0))
	assert.Equal(t, "structural_node", m.GetString("trade.trail_method", ""))
	assert.Equal(t, 300*time.Second, m.GetDuration("portfolio.p5_lockout", 0))
	assert.Len(t, cfg.Predator.Killzones, 2)

	assert.Equal(t, "fallback", m.Get("no.such.key", "fallback"))
	assert.NotEmpty(t, m.Hash())
}

func TestLoadMissingOptionalLayers(t *testing.T) {
	basePath := writeLayers(t, baseYAML, "", "")

	cfg, _, err := Load(Layers{Base: basePath, Profile: "missing", Instrument: "XX"}, false)
	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.Trade.Phase1TargetR)

	_, _, err = Load(Layers{Base: filepath.Join(t.TempDir(), "nope.yaml")}, false)
	assert.Error(t, err, "base layer is required")
}

func TestLoadOverridesWinOverFiles(t *testing.T) {
	basePath := writeLayers(t, baseYAML, "", "")

	cfg, _, err := Load(Layers{
		Base: basePath,
		Overrides: map[string]interface{}{
			"system.starting_equity": 250_000.0,
			"system.timezone":        "America/Chicago",
			"trade.phase1_target_r":  2.0,
		},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 250_000.0, cfg.System.StartingEquity)
	assert.Equal(t, "America/Chicago", cfg.Location().String())
	assert.Equal(t, 2.0, cfg.Trade.Phase1TargetR)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	basePath := writeLayers(t, "scoring:\n  thresholdz:\n    a_min: 1\n", "", "")
	_, _, err := Load(Layers{Base: basePath}, false)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	basePath := writeLayers(t, "trade:\n  trail_method: wiggle\n", "", "")
	_, _, err := Load(Layers{Base: basePath}, false)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "trade.trail_method", ve.Field)
}

func TestLoadRepoConfig(t *testing.T) {
	path := "../../config/base.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("config file not found")
	}

	m := NewManager(false, nil)
	require.NoError(t, m.Load(Layers{Base: path, Profile: "futures", Instrument: "ES"}))
	assert.Empty(t, m.ValidateToggles())
	assert.True(t, m.IsToggleEnabled(ToggleTapeFailure))
	assert.False(t, m.IsToggleEnabled(ToggleGEXAwareSelling))
	cfg := m.Config()
	assert.Empty(t, Warn(&cfg))
}

func TestLiveModeLocksSafetyToggles(t *testing.T) {
	basePath := writeLayers(t, `
system:
  live_mode: true
toggles:
  safety:
    T27_daily_drawdown_breaker: false
`, "", "")

	m := NewManager(false, nil)
	require.NoError(t, m.Load(Layers{Base: basePath}))

	assert.True(t, m.LiveMode())
	assert.True(t, m.Config().Risk.LiveMode)
	assert.True(t, m.IsToggleEnabled(ToggleDailyDrawdown))
	assert.True(t, m.GetBool("toggles.safety.T27_daily_drawdown_breaker", false), "lock is written into the tree")

	assert.ErrorIs(t, m.Reload(), ErrReloadInLiveMode)
}

func TestForceLiveOverridesFile(t *testing.T) {
	basePath := writeLayers(t, "system:\n  live_mode: false\n", "", "")
	m := NewManager(true, nil)
	require.NoError(t, m.Load(Layers{Base: basePath}))
	assert.True(t, m.LiveMode())
}

func TestReload(t *testing.T) {
	basePath := writeLayers(t, baseYAML, "", "")
	m := NewManager(false, nil)

	assert.ErrorIs(t, m.Reload(), ErrNotLoaded)

	require.NoError(t, m.Load(Layers{Base: basePath}))
	before := m.Hash()

	require.NoError(t, os.WriteFile(basePath, []byte("trade:\n  phase1_target_r: 4.0\n"), 0o644))
	require.NoError(t, m.Reload())
	assert.Equal(t, 4.0, m.Config().Trade.Phase1TargetR)
	assert.NotEqual(t, before, m.Hash())
}

func TestHashDeterministic(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()

	ha, err := Hash(&a)
	require.NoError(t, err)
	hb, err := Hash(&b)
	require.NoError(t, err)
	assert.Len(t, ha, 64)
	assert.Equal(t, ha, hb)

	b.Trade.Phase1TargetR = 3
	hb, _ = Hash(&b)
	assert.NotEqual(t, ha, hb)
}

func TestDecisionSnapshot(t *testing.T) {
	m, err := NewManagerFromConfig(DefaultConfig(), nil)
	require.NoError(t, err)

	snap, err := m.Snapshot("abc123")
	require.NoError(t, err)
	assert.Equal(t, m.Hash(), snap.ConfigHash)
	assert.Equal(t, "ES", snap.Instrument)
	assert.Contains(t, snap.ConfigYAML, "trail_method: structural_node")

	_, err = NewManager(false, nil).Snapshot("x")
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad timezone", func(c *Config) { c.System.Timezone = "Mars/Olympus" }, "system.timezone"},
		{"session roll", func(c *Config) { c.System.SessionRollTime = "6pm" }, "system.session_roll_time"},
		{"bad killzone", func(c *Config) { c.Predator.Killzones[0].Start = "9:30" }, "predator.killzones[0].start"},
		{"grade order", func(c *Config) { c.Scoring.Thresholds.AMin = 15 }, "scoring.thresholds"},
		{"positive drawdown", func(c *Config) { c.Risk.MaxDailyDrawdown = 0.03 }, "risk_overlord.max_daily_drawdown_pct"},
		{"partial pct", func(c *Config) { c.Trade.DefaultPartialPct = 1.5 }, "trade.default_partial_pct"},
		{"eod clock", func(c *Config) { c.Trade.EODFlattenTime = "25:00" }, "trade.eod_flatten_time"},
		{"order type", func(c *Config) { c.Bracket.DefaultOrderType = "market" }, "execution.default_order_type"},
		{"cron", func(c *Config) { c.Scheduler.DailyReset = "every day" }, "scheduler.daily_reset"},
		{"queue depth", func(c *Config) { c.EventBus.MaxQueueDepth = 0 }, "event_bus.max_queue_depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			var ve ValidationError
			require.ErrorAs(t, Validate(&cfg), &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	cfg := DefaultConfig()
	assert.NoError(t, Validate(&cfg))
}

func TestWarn(t *testing.T) {
	cfg := DefaultConfig()
	assert.Empty(t, Warn(&cfg))

	cfg.Shadow.Enabled = true
	cfg.System.LiveMode = true
	cfg.Bracket.TickSize = 0.5
	cfg.Toggles["risk"]["T99_made_up"] = true

	codes := map[string]bool{}
	for _, w := range Warn(&cfg) {
		codes[w.Code] = true
	}
	assert.True(t, codes["SHADOW_IN_LIVE"])
	assert.True(t, codes["TICK_SIZE_MISMATCH"])
	assert.True(t, codes["UNKNOWN_TOGGLE"])
}
