package contracts

// EventType identifies a notification on the event bus
type EventType string

const (
	EventOrderFired        EventType = "ORDER_FIRED"
	EventPositionClosed    EventType = "POSITION_CLOSED"
	EventRiskLimitBreached EventType = "RISK_LIMIT_BREACHED"
	EventStaleDataAlert    EventType = "STALE_DATA_ALERT"
	EventMacroDumpDetected EventType = "MACRO_DUMP_DETECTED"
	EventChopDetected      EventType = "CHOP_DETECTED"
	EventChopCleared       EventType = "CHOP_CLEARED"
	EventEODFlattenWarning EventType = "EOD_FLATTEN_WARNING"
	EventEODFlattenExecute EventType = "EOD_FLATTEN_EXECUTE"
	EventGEXUpdate         EventType = "GEX_UPDATE"
	EventDailyReset        EventType = "DAILY_RESET"
	EventStateTransition   EventType = "STATE_TRANSITION"
	EventSignalRejected    EventType = "SIGNAL_REJECTED"
)

// AllEventTypes lists every event type (구독 검증 및 메트릭 라벨용)
var AllEventTypes = []EventType{
	EventOrderFired,
	EventPositionClosed,
	EventRiskLimitBreached,
	EventStaleDataAlert,
	EventMacroDumpDetected,
	EventChopDetected,
	EventChopCleared,
	EventEODFlattenWarning,
	EventEODFlattenExecute,
	EventGEXUpdate,
	EventDailyReset,
	EventStateTransition,
	EventSignalRejected,
}

// IsSafetyCritical reports whether an event must bypass queued delivery
func (t EventType) IsSafetyCritical() bool {
	return t == EventRiskLimitBreached
}

// Event is an event bus message
type Event struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	TimestampNs int64                  `json:"ts"`
	Source      string                 `json:"source"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}
