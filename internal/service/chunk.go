package service

import (
	"strings"
	"unicode/utf8"

	"swimnotify/internal/constants"
)

// ChunkMessage splits text on line boundaries into chunks of at most limit
// runes. When no single line exceeds limit, joining the chunks with "\n"
// gives back text. A longer line is hard-split into chunks of its own.
func ChunkMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = constants.DefaultMaxChunkLength
	}
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		length  int
		open    bool
	)
	flush := func() {
		if open {
			chunks = append(chunks, current.String())
			current.Reset()
			length = 0
			open = false
		}
	}

	for _, line := range strings.Split(text, "\n") {
		n := utf8.RuneCountInString(line)
		if n > limit {
			flush()
			chunks = append(chunks, splitRunes(line, limit)...)
			continue
		}

		if open && length+1+n > limit {
			flush()
		}
		if open {
			current.WriteByte('\n')
			length++
		}
		current.WriteString(line)
		length += n
		open = true
	}
	flush()

	return chunks
}

func splitRunes(s string, limit int) []string {
	runes := []rune(s)
	out := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}
