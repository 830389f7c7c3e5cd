package voice

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxSpeechLength is the longest outputSpeech text Alexa accepts.
const MaxSpeechLength = 8000

var (
	mdCodeFence = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n?(.*?)```")
	mdLink      = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdHeading   = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]+`)
	mdBullet    = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+•]|\d+[.)])[ \t]+`)
	mdBold      = regexp.MustCompile(`\*\*(\S(?:.*?\S)?)\*\*|__(\S(?:.*?\S)?)__`)
	mdStrike    = regexp.MustCompile(`~~([^~\n]+)~~`)
	mdInline    = regexp.MustCompile("`([^`\n]+)`")
	blankLines  = regexp.MustCompile(`\n{2,}`)

	// Single delimiters only count when they open and close a word, so
	// "5 * 4" and "user_id" survive.
	mdItalic = []*regexp.Regexp{
		regexp.MustCompile(`(?m)(^|[\s(])\*(\S(?:[^*\n]*?\S)?)\*($|[\s.,;:!?)])`),
		regexp.MustCompile(`(?m)(^|[\s(])_(\S(?:[^_\n]*?\S)?)_($|[\s.,;:!?)])`),
	}
)

// Speakable turns a model answer into plain text suitable for speech output.
func Speakable(text string) string {
	text = mdCodeFence.ReplaceAllString(text, "$1")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdHeading.ReplaceAllString(text, "")
	text = mdBullet.ReplaceAllString(text, "")
	text = mdBold.ReplaceAllString(text, "$1$2")
	text = mdStrike.ReplaceAllString(text, "$1")
	text = mdInline.ReplaceAllString(text, "$1")
	// The trailing boundary is consumed, so adjacent spans need a second pass.
	for pass := 0; pass < 2; pass++ {
		for _, re := range mdItalic {
			text = re.ReplaceAllString(text, "$1$2$3")
		}
	}
	text = blankLines.ReplaceAllString(text, "\n")
	text = strings.TrimSpace(text)
	return truncateSpeech(text, MaxSpeechLength)
}

// truncateSpeech cuts text to at most limit runes, preferring the end of a
// sentence.
func truncateSpeech(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)[:limit]
	cut := string(runes)
	if i := strings.LastIndexAny(cut, ".!?"); i > len(cut)/2 {
		return cut[:i+1]
	}
	return strings.TrimSpace(cut)
}
