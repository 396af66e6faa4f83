package contracts

// ConfigProvider resolves dotted configuration keys and toggle state
// ⭐ SSOT: 코어 컴포넌트가 가정하는 설정 계약 (이 이상 가정하지 않음)
type ConfigProvider interface {
	Get(key string, def interface{}) interface{}
	// IsToggleEnabled already resolves parent dependencies and forced-on safety toggles
	IsToggleEnabled(id string) bool
}

// KillSwitch is the direct control plane used by the risk overlord
// ⭐ SSOT: Nuclear Flatten 은 이 인터페이스로만 수행 (이벤트 버스 경유 금지)
type KillSwitch interface {
	CancelAllOrders() error
	FlattenAllPositions() error
	ForceDormant() error
}

// Notifier accepts structured events
type Notifier interface {
	Publish(evt Event)
	// PublishSync delivers inline without queueing. Safety-critical path.
	PublishSync(evt Event)
}
