package alexa

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seu-repo/asistente-gemini/internal/domain"
)

const (
	// Version is the response envelope version Alexa expects.
	Version = "1.0"

	// AttrAssistantMode is the session attribute mirroring the assistant mode.
	AttrAssistantMode = "assistantMode"
)

var ErrMalformedEnvelope = errors.New("malformed alexa request envelope")

// RequestEnvelope is the JSON body Alexa posts to the skill endpoint.
type RequestEnvelope struct {
	Version string      `json:"version"`
	Session *Session    `json:"session,omitempty"`
	Context *Context    `json:"context,omitempty"`
	Request RequestBody `json:"request"`
}

type Session struct {
	New         bool                   `json:"new"`
	SessionID   string                 `json:"sessionId"`
	Application Application            `json:"application"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
	User        User                   `json:"user"`
}

type Application struct {
	ApplicationID string `json:"applicationId"`
}

type User struct {
	UserID string `json:"userId"`
}

type Context struct {
	System System `json:"System"`
}

type System struct {
	Application Application `json:"application"`
	User        User        `json:"user"`
}

type RequestBody struct {
	Type      string        `json:"type"`
	RequestID string        `json:"requestId"`
	Timestamp string        `json:"timestamp"`
	Locale    string        `json:"locale,omitempty"`
	Intent    *Intent       `json:"intent,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Error     *RequestError `json:"error,omitempty"`
}

type Intent struct {
	Name               string          `json:"name"`
	ConfirmationStatus string          `json:"confirmationStatus,omitempty"`
	Slots              map[string]Slot `json:"slots,omitempty"`
}

type Slot struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

type RequestError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ResponseEnvelope is the JSON body returned to Alexa.
type ResponseEnvelope struct {
	Version           string                 `json:"version"`
	SessionAttributes map[string]interface{} `json:"sessionAttributes,omitempty"`
	Response          ResponseBody           `json:"response"`
}

type ResponseBody struct {
	OutputSpeech     *OutputSpeech `json:"outputSpeech,omitempty"`
	Reprompt         *Reprompt     `json:"reprompt,omitempty"`
	ShouldEndSession *bool         `json:"shouldEndSession,omitempty"`
}

type OutputSpeech struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Reprompt struct {
	OutputSpeech OutputSpeech `json:"outputSpeech"`
}

// ParseRequest decodes and minimally validates a request envelope.
func ParseRequest(body []byte) (*RequestEnvelope, error) {
	var env RequestEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Request.Type == "" {
		return nil, fmt.Errorf("%w: missing request type", ErrMalformedEnvelope)
	}
	return &env, nil
}

// ApplicationID returns the skill id, preferring the context over the
// session since the session is absent on some request types.
func (e *RequestEnvelope) ApplicationID() string {
	if e.Context != nil && e.Context.System.Application.ApplicationID != "" {
		return e.Context.System.Application.ApplicationID
	}
	if e.Session != nil {
		return e.Session.Application.ApplicationID
	}
	return ""
}

// Timestamp parses request.timestamp. Zero when absent or unparseable.
func (e *RequestEnvelope) Timestamp() time.Time {
	ts, err := time.Parse(time.RFC3339, e.Request.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// ToDomain converts the envelope into a domain request plus the session
// state Alexa carried in its session attributes.
func (e *RequestEnvelope) ToDomain() (domain.Request, domain.Session) {
	req := domain.Request{
		Type:      domain.RequestType(e.Request.Type),
		RequestID: e.Request.RequestID,
		Locale:    e.Request.Locale,
		Reason:    e.Request.Reason,
	}
	if e.Request.Error != nil {
		req.Error = e.Request.Error.Type
		if e.Request.Error.Message != "" {
			req.Error += ": " + e.Request.Error.Message
		}
	}
	if e.Request.Intent != nil {
		req.Intent.Name = e.Request.Intent.Name
		if len(e.Request.Intent.Slots) > 0 {
			req.Intent.Slots = make(map[string]domain.Slot, len(e.Request.Intent.Slots))
			for key, s := range e.Request.Intent.Slots {
				name := s.Name
				if name == "" {
					name = key
				}
				req.Intent.Slots[key] = domain.Slot{Name: name, Value: s.Value}
			}
		}
	}

	var sess domain.Session
	if e.Session != nil {
		req.SessionID = e.Session.SessionID
		sess.ID = e.Session.SessionID
		sess.New = e.Session.New
		if on, ok := e.Session.Attributes[AttrAssistantMode].(bool); ok {
			sess.AssistantMode = on
		}
	}
	return req, sess
}

// BuildResponse renders a domain response as a plain text Alexa response.
// A reprompt keeps the session open unless the response says otherwise.
func BuildResponse(resp domain.Response) ResponseEnvelope {
	env := ResponseEnvelope{Version: Version}

	if resp.HasSpeech() {
		env.Response.OutputSpeech = plainText(resp.SpeechText)
	}
	if resp.HasReprompt() {
		env.Response.Reprompt = &Reprompt{OutputSpeech: *plainText(resp.RepromptText)}
	}

	switch {
	case resp.ShouldEndSession != nil:
		end := *resp.ShouldEndSession
		env.Response.ShouldEndSession = &end
	case resp.HasReprompt():
		end := false
		env.Response.ShouldEndSession = &end
	}

	if !resp.EndSession {
		env.SessionAttributes = map[string]interface{}{
			AttrAssistantMode: resp.Session.AssistantMode,
		}
	}
	return env
}

func plainText(text string) *OutputSpeech {
	return &OutputSpeech{Type: "PlainText", Text: text}
}
