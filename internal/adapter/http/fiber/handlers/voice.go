package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/internal/adapter/alexa"
	"github.com/seu-repo/asistente-gemini/internal/service/voice"
)

// VoiceHandler is the Alexa skill webhook.
type VoiceHandler struct {
	assistant *voice.VoiceAssistant
	verifier  *alexa.Verifier
	log       *zap.Logger
}

// NewVoiceHandler builds the webhook. A nil verifier accepts every request.
func NewVoiceHandler(assistant *voice.VoiceAssistant, verifier *alexa.Verifier, log *zap.Logger) *VoiceHandler {
	return &VoiceHandler{
		assistant: assistant,
		verifier:  verifier,
		log:       log,
	}
}

// VoicePath is where Alexa posts skill requests.
const VoicePath = "/alexa"

func (h *VoiceHandler) RegisterRoutes(app fiber.Router) {
	app.Post(VoicePath, h.HandleAlexa)
}

func (h *VoiceHandler) HandleAlexa(c *fiber.Ctx) error {
	body := c.Body()

	env, err := alexa.ParseRequest(body)
	if err != nil {
		h.log.Warn("Rejected malformed Alexa request", zap.Error(err))
		return fiber.NewError(fiber.StatusBadRequest, "Solicitud de Alexa inválida")
	}

	if h.verifier != nil {
		headers := http.Header{}
		headers.Set(alexa.HeaderCertChainURL, c.Get(alexa.HeaderCertChainURL))
		headers.Set(alexa.HeaderSignature, c.Get(alexa.HeaderSignature))

		if err := h.verifier.Verify(c.UserContext(), headers, body, env); err != nil {
			if errors.Is(err, alexa.ErrInvalidApplicationID) {
				return fiber.NewError(fiber.StatusUnauthorized, "Aplicación no autorizada")
			}
			return fiber.NewError(fiber.StatusBadRequest, "Verificación de la solicitud fallida")
		}
	}

	req, carried := env.ToDomain()
	resp := h.assistant.HandleRequest(c.UserContext(), req, carried)

	return c.JSON(alexa.BuildResponse(resp))
}
