package domain

import "time"

// InteractionStats summarizes the interaction history since a point in time.
type InteractionStats struct {
	Since          time.Time     `json:"since"`
	Total          int64         `json:"total"`
	Questions      int64         `json:"questions"`
	Answered       int64         `json:"answered"`
	ProviderFailed int64         `json:"provider_failed"`
	Sessions       int64         `json:"sessions"`
	AverageLatency time.Duration `json:"average_latency_ns"`
}

// SuccessRate is the share of questions Gemini answered, 0 when none were asked.
func (s InteractionStats) SuccessRate() float64 {
	if s.Questions == 0 {
		return 0
	}
	return float64(s.Answered) / float64(s.Questions)
}
