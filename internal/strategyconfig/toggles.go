package strategyconfig

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Toggle IDs referenced by the decision loop
const (
	ToggleHTFStructure    = "T01"
	ToggleHTFRegime       = "T02"
	ToggleSyntheticMAPOI  = "T03"
	TogglePOIFreshness    = "T04"
	ToggleLiquiditySweep  = "T05"
	ToggleCHOCH           = "T06"
	ToggleOrderFlow       = "T07"
	ToggleAbsorption      = "T08"
	ToggleWhaleWatch      = "T09"
	ToggleKillzoneGate    = "T10"
	ToggleFastMoveSwitch  = "T11"
	ToggleSMAHalt         = "T12"
	ToggleFlat200         = "T13"
	ToggleElephantBar     = "T14"
	ToggleMicroTrend      = "T15"
	ToggleVelez           = "T16"
	ToggleVPStops         = "T17"
	ToggleTapeFailure     = "T18"
	ToggleStructuralTrail = "T19"
	ToggleRBIGBIHold      = "T20"
	ToggleSMAHealth       = "T21"
	Toggle200SMAExitWatch = "T22"
	TogglePhase1Partial   = "T23"
	ToggleOCOBracket      = "T24"
	ToggleAntiSpam        = "T25"
	ToggleFatFinger       = "T26"
	ToggleDailyDrawdown   = "T27"
	ToggleStaleData       = "T28"
	ToggleSuddenMove      = "T29"
	ToggleCascadeOverride = "T30"
	ToggleToxicityTimer   = "T35"
	ToggleAPlusScaleout   = "T36"
	ToggleMacroDump       = "T38"
	ToggleGEXAwareSelling = "T47"
	ToggleToxicityExit    = "T48"
)

// toggleKeys maps toggle id → dotted config key
// ⭐ SSOT: 토글 키 경로는 이 테이블에서만
var toggleKeys = map[string]string{
	"T01": "toggles.structure.T01_htf_structure_mapper",
	"T02": "toggles.structure.T02_htf_regime_filter",
	"T03": "toggles.structure.T03_synthetic_ma_poi",
	"T04": "toggles.structure.T04_poi_freshness_tracking",
	"T05": "toggles.structure.T05_liquidity_sweep_detection",
	"T06": "toggles.execution.T06_choch_detection",
	"T07": "toggles.execution.T07_order_flow_confirmation",
	"T08": "toggles.execution.T08_absorption_detection",
	"T09": "toggles.execution.T09_whale_watch_filter",
	"T10": "toggles.execution.T10_killzone_time_gate",
	"T11": "toggles.execution.T11_fast_move_switch",
	"T12": "toggles.velez.T12_20sma_halt_confluence",
	"T13": "toggles.velez.T13_flat_200sma_confluence",
	"T14": "toggles.velez.T14_elephant_bar_confirmation",
	"T15": "toggles.velez.T15_20sma_micro_trend",
	"T16": "toggles.velez.T16_all_velez_layers",
	"T17": "toggles.risk.T17_hvn_lvn_stop_placement",
	"T18": "toggles.risk.T18_conditional_tape_failure",
	"T19": "toggles.risk.T19_structural_node_trail",
	"T20": "toggles.risk.T20_rbi_gbi_hold_filter",
	"T21": "toggles.risk.T21_20sma_health_check",
	"T22": "toggles.risk.T22_200sma_exit_watch_zone",
	"T23": "toggles.risk.T23_phase1_fixed_partial",
	"T24": "toggles.safety.T24_oco_bracket_enforcement",
	"T25": "toggles.safety.T25_anti_spam_rate_limiter",
	"T26": "toggles.safety.T26_fat_finger_position_limit",
	"T27": "toggles.safety.T27_daily_drawdown_breaker",
	"T28": "toggles.safety.T28_stale_data_monitor",
	"T29": "toggles.safety.T29_sudden_move_classifier",
	"T30": "toggles.safety.T30_cascade_position_override",
	"T31": "toggles.structure.T31_mtf_poi_hierarchy",
	"T32": "toggles.structure.T32_poi_clustering",
	"T33": "toggles.execution.T33_schema_shifting",
	"T34": "toggles.execution.T34_proximity_halo_dynamic",
	"T35": "toggles.risk.T35_toxicity_timer",
	"T36": "toggles.risk.T36_a_plus_scaleout",
	"T37": "toggles.multi_asset.T37_cross_asset_correlation",
	"T38": "toggles.multi_asset.T38_macro_dump_detector",
	"T39": "toggles.structure.T39_extreme_decisional_tagging",
	"T40": "toggles.structure.T40_unicorn_poi_detection",
	"T41": "toggles.multi_asset.T41_earnings_shield",
	"T42": "toggles.multi_asset.T42_funding_rate_monitor",
	"T43": "toggles.multi_asset.T43_oi_delta_tracker",
	"T44": "toggles.multi_asset.T44_forex_session_overlap",
	"T45": "toggles.multi_asset.T45_multi_exchange_arb",
	"T46": "toggles.options.T46_options_routing",
	"T47": "toggles.options.T47_gex_aware_selling",
	"T48": "toggles.risk.T48_toxicity_exit",
	"T49": "toggles.options.T49_forex_carry_trade",
	"T50": "toggles.options.T50_iron_condor_chop",
}

// toggleParents: 자식 토글은 모든 부모가 ON일 때만 ON (AND)
var toggleParents = map[string][]string{
	"T02": {"T01"},
	"T03": {"T02"},
	"T08": {"T07"},
	"T09": {"T07"},
	"T18": {"T07"},
	"T12": {"T16"},
	"T13": {"T16"},
	"T14": {"T16"},
	"T15": {"T16"},
	"T20": {"T19"},
	"T21": {"T18", "T19"},
	"T30": {"T29"},
	"T32": {"T31"},
	"T47": {"T46"},
}

// safetyToggles are locked on in live mode
var safetyToggles = []string{"T24", "T25", "T26", "T27", "T28"}

// defaultOff 기본 OFF 토글 (멀티에셋, 옵션, 미구현 구조 확장)
var defaultOff = map[string]bool{
	"T31": true, "T32": true, "T33": true, "T34": true,
	"T37": true, "T39": true, "T40": true, "T41": true, "T42": true,
	"T43": true, "T44": true, "T45": true, "T46": true, "T47": true,
	"T49": true, "T50": true,
}

// ToggleKey returns the dotted config key for a toggle id
func ToggleKey(id string) (string, bool) {
	key, ok := toggleKeys[id]
	return key, ok
}

// ToggleIDs returns every known toggle id in order
func ToggleIDs() []string {
	ids := make([]string, 0, len(toggleKeys))
	for id := range toggleKeys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ToggleParents returns the parents a toggle depends on
func ToggleParents(id string) []string {
	return append([]string(nil), toggleParents[id]...)
}

// IsSafetyToggle reports whether id is locked on in live mode
func IsSafetyToggle(id string) bool {
	for _, s := range safetyToggles {
		if s == id {
			return true
		}
	}
	return false
}

// DefaultToggles builds the toggles tree with every known toggle set
func DefaultToggles() map[string]ToggleSection {
	out := make(map[string]ToggleSection)
	for id, key := range toggleKeys {
		group, name := splitToggleKey(key)
		if out[group] == nil {
			out[group] = ToggleSection{}
		}
		out[group][name] = !defaultOff[id]
	}
	return out
}

// splitToggleKey turns "toggles.<group>.<name>" into (group, name)
func splitToggleKey(key string) (string, string) {
	parts := strings.SplitN(key, ".", 3)
	return parts[1], parts[2]
}

// =============================================================================
// Registry
// =============================================================================

// Getter resolves a dotted key
type Getter func(key string, def interface{}) interface{}

// Issue is one toggle validation finding
type Issue struct {
	ToggleID string `json:"toggle_id"`
	Key      string `json:"key"`
	Message  string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s (%s): %s", i.ToggleID, i.Key, i.Message)
}

// Registry evaluates toggles against the dependency graph.
// 결과는 레지스트리 단위로 메모이즈 (설정 리로드 시 새 레지스트리 생성)
type Registry struct {
	get      Getter
	liveMode bool

	mu    sync.Mutex
	cache map[string]bool
}

// NewRegistry creates a registry over a config getter
func NewRegistry(get Getter, liveMode bool) *Registry {
	return &Registry{
		get:      get,
		liveMode: liveMode,
		cache:    make(map[string]bool),
	}
}

// LiveMode reports whether safety locks are active
func (r *Registry) LiveMode() bool {
	return r.liveMode
}

// IsEnabled resolves a toggle: safety lock → own value → all parents
func (r *Registry) IsEnabled(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolve(id)
}

func (r *Registry) resolve(id string) bool {
	if v, ok := r.cache[id]; ok {
		return v
	}

	enabled := r.evaluate(id)
	r.cache[id] = enabled
	return enabled
}

func (r *Registry) evaluate(id string) bool {
	if r.liveMode && IsSafetyToggle(id) {
		return true
	}

	key, ok := toggleKeys[id]
	if !ok {
		return false
	}
	own, isBool := r.get(key, false).(bool)
	if !isBool || !own {
		return false
	}

	for _, parent := range toggleParents[id] {
		if !r.resolve(parent) {
			return false
		}
	}
	return true
}

// Validate reports non-bool toggle values and children enabled under a disabled parent.
// 결과 순서: 토글 ID 순
func (r *Registry) Validate() []Issue {
	var issues []Issue

	for _, id := range ToggleIDs() {
		key := toggleKeys[id]
		val := r.get(key, nil)
		if val == nil {
			continue
		}
		if _, ok := val.(bool); !ok {
			issues = append(issues, Issue{
				ToggleID: id,
				Key:      key,
				Message:  fmt.Sprintf("expected bool, got %T", val),
			})
		}
	}

	for _, id := range ToggleIDs() {
		parents, ok := toggleParents[id]
		if !ok {
			continue
		}
		if on, _ := r.get(toggleKeys[id], false).(bool); !on {
			continue
		}
		for _, parent := range parents {
			if on, _ := r.get(toggleKeys[parent], false).(bool); !on {
				issues = append(issues, Issue{
					ToggleID: id,
					Key:      toggleKeys[id],
					Message:  fmt.Sprintf("ON but parent %s is OFF (forced OFF at runtime)", parent),
				})
			}
		}
	}

	return issues
}

// enforceSafetyLocks writes true for every safety toggle into a raw tree
func enforceSafetyLocks(tree map[string]interface{}) {
	for _, id := range safetyToggles {
		setNested(tree, toggleKeys[id], true)
	}
}
