package domain

import "time"

// InteractionEvent is the audit record emitted after every handled request.
type InteractionEvent struct {
	ID             string        `json:"id"`
	SessionID      string        `json:"session_id"`
	RequestID      string        `json:"request_id,omitempty"`
	RequestType    RequestType   `json:"request_type"`
	Intent         string        `json:"intent,omitempty"`
	Question       string        `json:"question,omitempty"`
	Answered       bool          `json:"answered"`
	ProviderFailed bool          `json:"provider_failed"`
	AssistantMode  bool          `json:"assistant_mode"`
	SessionEnded   bool          `json:"session_ended"`
	Latency        time.Duration `json:"latency_ns"`
	Timestamp      time.Time     `json:"timestamp"`
}
