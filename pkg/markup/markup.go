// Package markup repairs and splits Telegram Markdown text before sending.
package markup

import "strings"

const fence = "```"

func isToggle(c byte) bool {
	return c == '*' || c == '`' || c == '~'
}

// Balance makes sure every Markdown delimiter opened in text is eventually
// closed. It scans left to right keeping a stack of open delimiters: a token
// matching the stack top closes it, anything else opens a new one, and
// whatever is still open at the end is closed in reverse order. The code
// fence takes priority over a lone backtick at the same position.
//
// The result is syntactically balanced, not necessarily semantically sound;
// this is a repair pass, not a parser.
func Balance(text string) string {
	if text == "" {
		return ""
	}

	var stack []string
	var b strings.Builder
	b.Grow(len(text) + 4)

	for i := 0; i < len(text); {
		if strings.HasPrefix(text[i:], fence) {
			if len(stack) > 0 && stack[len(stack)-1] == fence {
				stack = stack[:len(stack)-1]
			} else {
				stack = append(stack, fence)
			}
			b.WriteString(fence)
			i += len(fence)
			continue
		}

		c := text[i]
		if isToggle(c) {
			tok := string(c)
			if len(stack) > 0 && stack[len(stack)-1] == tok {
				stack = stack[:len(stack)-1]
			} else {
				stack = append(stack, tok)
			}
		}
		b.WriteByte(c)
		i++
	}

	// Close whatever is still open, innermost first.
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteString(stack[i])
	}

	return b.String()
}
