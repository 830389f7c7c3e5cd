package domain

import "strings"

type RequestType string

const (
	RequestTypeLaunch       RequestType = "LaunchRequest"
	RequestTypeIntent       RequestType = "IntentRequest"
	RequestTypeSessionEnded RequestType = "SessionEndedRequest"
)

// Intent names routed explicitly by the assistant.
const (
	IntentActivateAssistantMode   = "ActivateAssistantMode"
	IntentDeactivateAssistantMode = "DeactivateAssistantMode"
	IntentAskAssistant            = "AskAssistant"
	IntentAskGeminiLegacy         = "PreguntarGeminiIntent"

	IntentHelp   = "AMAZON.HelpIntent"
	IntentStop   = "AMAZON.StopIntent"
	IntentCancel = "AMAZON.CancelIntent"
)

// SlotQuestion carries the free-form question text.
const SlotQuestion = "texto"

// Request is the platform-independent view of one inbound voice request.
// Only the fields matching Type are meaningful.
type Request struct {
	Type      RequestType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	SessionID string      `json:"session_id"`
	Locale    string      `json:"locale,omitempty"`

	// IntentRequest
	Intent Intent `json:"intent,omitempty"`

	// SessionEndedRequest
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

type Intent struct {
	Name  string          `json:"name"`
	Slots map[string]Slot `json:"slots,omitempty"`
}

// Slot is a declared intent parameter. Value is empty when the user did not fill it.
type Slot struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// SlotValue returns the trimmed value of a slot and whether it was filled.
func (i Intent) SlotValue(name string) (string, bool) {
	slot, ok := i.Slots[name]
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(slot.Value)
	if value == "" {
		return "", false
	}
	return value, true
}

// Response is what a router arm produces for exactly one Request.
type Response struct {
	SpeechText       string  `json:"speech_text"`
	RepromptText     string  `json:"reprompt_text,omitempty"`
	ShouldEndSession *bool   `json:"should_end_session,omitempty"`
	Session          Session `json:"session"`

	// EndSession tells the caller to discard the stored session.
	EndSession bool `json:"-"`
}

func (r Response) HasReprompt() bool {
	return r.RepromptText != ""
}

func (r Response) HasSpeech() bool {
	return r.SpeechText != ""
}
