package domain

import "errors"

// ErrAnswerProvider is wrapped by every failure of the external answer
// provider: transport errors, non-2xx status, malformed or empty bodies and
// calls rejected by an open circuit.
var ErrAnswerProvider = errors.New("answer provider failure")
