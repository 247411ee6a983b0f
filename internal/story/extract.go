// Package story turns raw assistant replies into display text and structured
// story fields.
package story

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"storybook-agent/internal/domain"
)

const (
	StartMarker = "[STORY_START]"
	EndMarker   = "[STORY_END]"

	longStoryLength = 500
)

var (
	onceUponATime = regexp.MustCompile(`(?i)once upon a time`)
	livedHappily  = regexp.MustCompile(`(?i)\.\s*And\s+they\s+lived`)
)

// Extract parses an assistant reply. It never fails: malformed embedded JSON
// yields an empty profile, missing JSON yields a nil profile.
func Extract(raw string) domain.ExtractionResult {
	display := delimited(raw)

	profile := embeddedProfile(raw)
	if profile != nil {
		profile[domain.StoryTextKey] = display
	}

	return domain.ExtractionResult{
		Success:      strings.TrimSpace(display) != "",
		RawMessage:   raw,
		DisplayText:  display,
		IsComplete:   strings.Contains(raw, StartMarker),
		StoryProfile: profile,
	}
}

// delimited returns the trimmed text between the first start and end
// markers, or raw unchanged when the pair is missing or out of order.
func delimited(raw string) string {
	start := strings.Index(raw, StartMarker)
	end := strings.Index(raw, EndMarker)
	if start == -1 || end == -1 || end <= start {
		return raw
	}
	return strings.TrimSpace(raw[start+len(StartMarker) : end])
}

// embeddedProfile decodes the first {...} region of raw, matched
// non-greedily up to the nearest closing brace.
func embeddedProfile(raw string) domain.StoryProfile {
	open := strings.IndexByte(raw, '{')
	if open == -1 {
		return nil
	}
	closing := strings.IndexByte(raw[open:], '}')
	if closing == -1 {
		return nil
	}
	candidate := raw[open : open+closing+1]

	dec := json.NewDecoder(bytes.NewBufferString(candidate))
	dec.UseNumber()
	var profile domain.StoryProfile
	if err := dec.Decode(&profile); err != nil || profile == nil {
		return domain.StoryProfile{}
	}
	return profile
}

// FromOnceUponATime trims everything before the first case-insensitive
// "once upon a time". Text without the phrase is returned unchanged.
func FromOnceUponATime(text string) string {
	loc := onceUponATime.FindStringIndex(text)
	if loc == nil {
		return text
	}
	return strings.TrimSpace(text[loc[0]:])
}

// LooksLikeStory reports whether text reads like a finished narrative even
// without markers.
func LooksLikeStory(text string) bool {
	if len(text) > longStoryLength && strings.Contains(text, "Once upon a time") {
		return true
	}
	return strings.Contains(text, "The End") || livedHappily.MatchString(text)
}
