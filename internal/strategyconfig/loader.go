package strategyconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Layers locates the three config files. Missing profile/instrument files are skipped.
type Layers struct {
	Base       string
	Profile    string
	Instrument string

	// Overrides are dotted keys applied after every file (환경변수, CLI 플래그)
	Overrides map[string]interface{}
}

// ProfilePath returns profiles/profile_<name>.yaml next to the base file
func (l Layers) ProfilePath() string {
	if l.Profile == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(l.Base), "profiles", "profile_"+l.Profile+".yaml")
}

// InstrumentPath returns instruments/<name>.yaml next to the base file
func (l Layers) InstrumentPath() string {
	if l.Instrument == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(l.Base), "instruments", l.Instrument+".yaml")
}

// Load merges defaults → base → profile → instrument (last wins) and decodes the result
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(layers Layers, forceLive bool) (*Config, map[string]interface{}, error) {
	tree, err := defaultTree()
	if err != nil {
		return nil, nil, err
	}

	paths := []struct {
		path     string
		required bool
	}{
		{layers.Base, true},
		{layers.ProfilePath(), false},
		{layers.InstrumentPath(), false},
	}
	for _, p := range paths {
		if p.path == "" {
			continue
		}
		layer, err := readLayer(p.path)
		if err != nil {
			if !p.required && os.IsNotExist(err) {
				continue
			}
			return nil, nil, fmt.Errorf("config layer %s: %w", p.path, err)
		}
		tree = deepMerge(tree, layer)
	}

	for key, value := range layers.Overrides {
		setNested(tree, key, value)
	}

	if forceLive {
		setNested(tree, "system.live_mode", true)
	}
	if live, _ := getNested(tree, "system.live_mode").(bool); live {
		enforceSafetyLocks(tree)
	}

	cfg, err := decodeTree(tree)
	if err != nil {
		return nil, nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, tree, err
	}
	return cfg, tree, nil
}

// readLayer parses one YAML file into a generic tree
func readLayer(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tree := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// defaultTree renders DefaultConfig as layer 0
func defaultTree() (map[string]interface{}, error) {
	return toTree(DefaultConfig())
}

// toTree renders a typed config as a generic tree
func toTree(cfg Config) (map[string]interface{}, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	tree := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// decodeTree decodes a merged tree into the typed Config
func decodeTree(tree map[string]interface{}) (*Config, error) {
	data, err := yaml.Marshal(tree)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.Risk.LiveMode = cfg.System.LiveMode
	return &cfg, nil
}

// deepMerge merges override into a copy of base. Maps merge recursively, everything else is replaced.
func deepMerge(base, override map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		bm, baseIsMap := out[k].(map[string]interface{})
		om, overIsMap := v.(map[string]interface{})
		if baseIsMap && overIsMap {
			out[k] = deepMerge(bm, om)
			continue
		}
		out[k] = v
	}
	return out
}

// getNested resolves a dotted key, nil when absent
func getNested(tree map[string]interface{}, dotted string) interface{} {
	var cur interface{} = tree
	for _, part := range strings.Split(dotted, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		if cur, ok = m[part]; !ok {
			return nil
		}
	}
	return cur
}

// setNested writes a value at a dotted key, creating intermediate maps
func setNested(tree map[string]interface{}, dotted string, value interface{}) {
	parts := strings.Split(dotted, ".")
	cur := tree
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// Hash generates SHA256 hash from Config (canonical JSON)
// 주의: map 키는 encoding/json이 정렬하므로 재현성 보장
func Hash(cfg *Config) (string, error) {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// NewDecisionSnapshot creates a snapshot for the journal
func NewDecisionSnapshot(cfg *Config, gitCommit string) (*DecisionSnapshot, error) {
	hash, err := Hash(cfg)
	if err != nil {
		return nil, err
	}
	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	return &DecisionSnapshot{
		ConfigHash: hash,
		ConfigYAML: string(yamlData),
		Profile:    cfg.System.Profile,
		Instrument: cfg.System.Instrument,
		GitCommit:  gitCommit,
		CreatedAt:  time.Now(),
	}, nil
}
