package summarizer

import (
	"fmt"
	"unicode/utf8"
)

// UserPrefix introduces the transcript inside the user turn.
const UserPrefix = "Summarize this transcript:\n\n"

// Truncate returns the first limit characters of text. Characters are runes, so
// multi-byte text is never split mid-sequence. No ellipsis is appended.
func Truncate(text string, limit int) string {
	if limit < 0 {
		limit = 0
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	count := 0
	for i := range text {
		if count == limit {
			return text[:i]
		}
		count++
	}
	return text
}

// Compose builds the two-turn conversation: system instruction first, transcript second.
func Compose(template, transcript string) Conversation {
	return Conversation{
		{Role: RoleSystem, Content: template},
		{Role: RoleUser, Content: UserPrefix + transcript},
	}
}

// Validate enforces the shape the runtime accepts: exactly a system turn followed by a
// user turn whose embedded transcript fits within maxChars.
func (c Conversation) Validate(maxChars int) error {
	if len(c) != 2 {
		return fmt.Errorf("conversation must have 2 turns, got %d", len(c))
	}
	if c[0].Role != RoleSystem || c[1].Role != RoleUser {
		return fmt.Errorf("conversation must be system then user, got %s then %s", c[0].Role, c[1].Role)
	}
	if maxChars > 0 {
		embedded := utf8.RuneCountInString(c[1].Content) - utf8.RuneCountInString(UserPrefix)
		if embedded > maxChars {
			return fmt.Errorf("transcript of %d characters exceeds budget of %d", embedded, maxChars)
		}
	}
	return nil
}
