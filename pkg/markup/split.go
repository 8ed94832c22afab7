package markup

import (
	"strings"
	"unicode/utf8"
)

// Split breaks text into chunks of at most limit bytes, preferring line
// boundaries. Lines are packed greedily into the current chunk; a single line
// longer than the limit is force-sliced into limit-sized pieces after the
// partial chunk is flushed. Finished chunks are whitespace-trimmed and empty
// chunks are dropped.
func Split(text string, limit int) []string {
	if limit <= 0 {
		return nil
	}

	var chunks []string
	flush := func(chunk string) {
		if trimmed := strings.TrimSpace(chunk); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
	}

	current := ""
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		switch {
		case len(line) > limit:
			flush(current)
			current = ""
			for start := 0; start < len(line); {
				end := start + limit
				if end >= len(line) {
					chunks = append(chunks, line[start:])
					break
				}
				// Back off so the cut never lands inside a multi-byte rune.
				for end > start && !utf8.RuneStart(line[end]) {
					end--
				}
				if end == start {
					end = start + limit
				}
				chunks = append(chunks, line[start:end])
				start = end
			}
		case len(current)+len(line)+1 <= limit:
			current += line
			if i < len(lines)-1 {
				current += "\n"
			}
		default:
			flush(current)
			current = line
			if i < len(lines)-1 {
				current += "\n"
			}
		}
	}
	flush(current)

	return chunks
}
