package telegram

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Decision is the outcome of routing one inbound message: whether the bot
// answers at all, with which prompt, and which trigger matched (if any).
type Decision struct {
	Respond bool
	Prompt  string
	Trigger string
}

func isPrivateChat(chatType string) bool {
	return chatType == "private"
}

// foldPrefixLen returns the byte length of the prefix of s matching trigger
// case-insensitively, or -1 when s does not start with it. Matching rune by
// rune keeps the offset valid for slicing s even when case folding changes
// byte widths.
func foldPrefixLen(s, trigger string) int {
	n := 0
	for _, tr := range trigger {
		r, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 || unicode.ToLower(r) != unicode.ToLower(tr) {
			return -1
		}
		n += size
	}
	return n
}

// decideText routes a plain text message. Private chats always get an
// answer; group chats answer replies to the bot and trigger-prefixed
// messages. A trigger matches only as a whole word: exactly, or followed by
// a space.
func decideText(chatType, text string, replyToBot bool, triggers []string) Decision {
	if isPrivateChat(chatType) {
		return Decision{Respond: true, Prompt: text}
	}
	if replyToBot {
		return Decision{Respond: true, Prompt: text}
	}

	for _, trigger := range triggers {
		n := foldPrefixLen(text, trigger)
		if n < 0 {
			continue
		}
		if n == len(text) {
			return Decision{Respond: true, Trigger: trigger}
		}
		if text[n] == ' ' {
			return Decision{
				Respond: true,
				Prompt:  strings.TrimSpace(text[n:]),
				Trigger: trigger,
			}
		}
	}
	return Decision{}
}

// decideCaption routes a photo by its caption. Same rules as decideText,
// except that a caption merely starting with trigger characters without a
// word break ("/aiert") stops the scan without a match.
func decideCaption(chatType, caption string, replyToBot bool, triggers []string) Decision {
	if isPrivateChat(chatType) {
		return Decision{Respond: true, Prompt: caption}
	}
	if replyToBot {
		return Decision{Respond: true, Prompt: caption}
	}

	for _, trigger := range triggers {
		n := foldPrefixLen(caption, trigger)
		if n < 0 {
			continue
		}
		if n == len(caption) || caption[n] == ' ' {
			return Decision{
				Respond: true,
				Prompt:  strings.TrimSpace(caption[n:]),
				Trigger: trigger,
			}
		}
		// Prefix without a word break is not a trigger.
		return Decision{}
	}
	return Decision{}
}
