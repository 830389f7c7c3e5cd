package voice

// Messages are the fixed utterances of the skill.
type Messages struct {
	Greeting          string
	Reprompt          string
	ActivateConfirm   string
	DeactivateConfirm string
	Fallback          string
	ProviderApology   string
	AskForQuestion    string
	FollowUp          string
	Help              string
	Goodbye           string
}

func DefaultMessages() Messages {
	return Messages{
		Greeting:          "Hola, pregúntame lo que quieras.",
		Reprompt:          "¿Qué quieres saber?",
		ActivateConfirm:   "Modo asistente activado. Pregúntame lo que quieras.",
		DeactivateConfirm: "Modo asistente desactivado.",
		Fallback:          "Lo siento, no entendí tu pregunta. Por favor intenta de nuevo.",
		ProviderApology:   "Lo siento, tuve un problema consultando a Gemini. Intenta de nuevo más tarde.",
		AskForQuestion:    "¿Qué quieres preguntarle a Gemini?",
		FollowUp:          "¿Quieres preguntar algo más?",
		Help: "Puedes hacerme cualquier pregunta y se la haré a Gemini. " +
			"Di activar modo asistente o desactivar modo asistente para cambiar de modo.",
		Goodbye: "¡Hasta luego!",
	}
}
