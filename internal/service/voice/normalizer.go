package voice

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultInvocationPhrases are the filler phrases users put in front of a
// question when talking to the skill.
var DefaultInvocationPhrases = []string{
	"pregúntale a asistente gemini",
	"pregúntale al asistente gemini",
	"preguntale a asistente gemini",
	"preguntale al asistente gemini",
	"pregunta a asistente gemini",
	"pregunta al asistente gemini",
	"pregúntale a asistente",
	"pregúntale al asistente",
	"preguntale a asistente",
	"preguntale al asistente",
	"pregúntale a gemini",
	"preguntale a gemini",
	"pregunta a gemini",
	"dile a asistente gemini",
	"dile al asistente gemini",
	"dile a asistente",
	"dile al asistente",
	"dile a gemini",
	"ask the assistant",
	"tell the assistant",
	"ask assistant",
	"tell assistant",
	"ask gemini",
	"tell gemini",
}

// DefaultConnectives may follow an invocation phrase and are stripped with it.
var DefaultConnectives = []string{
	"que", "si", "sobre", "acerca de", "about", "whether", "if", "to", "that",
}

// Normalizer strips invocation phrases from the start of spoken text.
type Normalizer struct {
	prefix *regexp.Regexp
}

// NewNormalizer compiles a normalizer for the given phrases and connectives.
// Matching is case-insensitive, anchored at the start and on whole words.
func NewNormalizer(phrases, connectives []string) *Normalizer {
	phraseAlt := alternation(phrases)
	if phraseAlt == "" {
		return &Normalizer{}
	}

	// Transcripts often put a comma or colon after the phrase.
	const sep = `[\s,.:;]+`
	pattern := `(?i)^\s*(?:` + phraseAlt + `)`
	if connAlt := alternation(connectives); connAlt != "" {
		pattern += `(?:` + sep + `(?:` + connAlt + `))?`
	}
	pattern += `(?:` + sep + `|$)`

	return &Normalizer{prefix: regexp.MustCompile(pattern)}
}

// Normalize removes a leading invocation phrase and following connective, then
// trims the remainder. Text without a known phrase is only trimmed.
func (n *Normalizer) Normalize(raw string) string {
	if n.prefix == nil {
		return strings.TrimSpace(raw)
	}
	if loc := n.prefix.FindStringIndex(raw); loc != nil {
		raw = raw[loc[1]:]
	}
	return strings.TrimSpace(raw)
}

var defaultNormalizer = NewNormalizer(DefaultInvocationPhrases, DefaultConnectives)

// Normalize strips the default invocation phrases.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// alternation builds a regexp alternation with the longest phrase first so the
// leftmost-first match prefers "... asistente gemini" over "... asistente".
func alternation(words []string) string {
	cleaned := make([]string, 0, len(words))
	for _, w := range words {
		if f := strings.Fields(w); len(f) > 0 {
			cleaned = append(cleaned, strings.Join(f, " "))
		}
	}
	sort.SliceStable(cleaned, func(i, j int) bool {
		return len(cleaned[i]) > len(cleaned[j])
	})

	parts := make([]string, 0, len(cleaned))
	for _, w := range cleaned {
		words := strings.Fields(w)
		for i := range words {
			words[i] = regexp.QuoteMeta(words[i])
		}
		parts = append(parts, strings.Join(words, `\s+`))
	}
	return strings.Join(parts, "|")
}
