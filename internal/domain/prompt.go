package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxUserPromptLength caps the prompt stored on a job, in runes.
	MaxUserPromptLength = 1000
	// MaxFinalPromptLength caps the composed prompt sent upstream, in runes.
	MaxFinalPromptLength = 2000
)

// SanitizePrompt strips control characters, collapses runs of whitespace and
// truncates the result to max runes. Newlines survive as single spaces.
func SanitizePrompt(raw string, max int) string {
	var b strings.Builder
	b.Grow(len(raw))
	space := false
	for _, r := range raw {
		if r == utf8.RuneError {
			continue
		}
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	out := b.String()
	if max > 0 && utf8.RuneCountInString(out) > max {
		runes := []rune(out)
		out = strings.TrimSpace(string(runes[:max]))
	}
	return out
}

// ComposePrompt merges a template with the user's prompt. A "{prompt}"
// placeholder is substituted; otherwise the user prompt is appended.
func ComposePrompt(tmpl *Template, userPrompt string) string {
	userPrompt = SanitizePrompt(userPrompt, MaxUserPromptLength)
	if tmpl == nil || strings.TrimSpace(tmpl.PromptTemplate) == "" {
		return SanitizePrompt(userPrompt, MaxFinalPromptLength)
	}
	text := tmpl.PromptTemplate
	if strings.Contains(text, "{prompt}") {
		text = strings.ReplaceAll(text, "{prompt}", userPrompt)
	} else if userPrompt != "" {
		text = text + "\n" + userPrompt
	}
	return SanitizePrompt(text, MaxFinalPromptLength)
}
