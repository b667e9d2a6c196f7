package domain

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizePrompt(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		max  int
		want string
	}{
		{name: "plain", raw: "a red bicycle", max: 100, want: "a red bicycle"},
		{name: "control characters", raw: "a\x00red\x07 bike\x1b", max: 100, want: "ared bike"},
		{name: "newlines collapse", raw: "  line one\n\n\tline two  ", max: 100, want: "line one line two"},
		{name: "zero width dropped", raw: "sun\u200bset", max: 100, want: "sunset"},
		{name: "truncated", raw: "abcdefghij", max: 4, want: "abcd"},
		{name: "multibyte truncation", raw: "ééééé", max: 3, want: "ééé"},
		{name: "no cap", raw: "abc", max: 0, want: "abc"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizePrompt(tc.raw, tc.max); got != tc.want {
				t.Fatalf("SanitizePrompt(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestComposePromptPlaceholder(t *testing.T) {
	tmpl := &Template{PromptTemplate: "Studio photo of {prompt}, soft light"}
	got := ComposePrompt(tmpl, "a ceramic mug")
	if got != "Studio photo of a ceramic mug, soft light" {
		t.Fatalf("ComposePrompt = %q", got)
	}
}

func TestComposePromptAppendsAndCaps(t *testing.T) {
	tmpl := &Template{PromptTemplate: strings.Repeat("x", MaxFinalPromptLength)}
	got := ComposePrompt(tmpl, "tail")
	if n := utf8.RuneCountInString(got); n != MaxFinalPromptLength {
		t.Fatalf("composed length = %d, want %d", n, MaxFinalPromptLength)
	}
	if got := ComposePrompt(nil, "just\tuser"); got != "just user" {
		t.Fatalf("ComposePrompt(nil) = %q", got)
	}
}
