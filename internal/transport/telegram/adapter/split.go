package adapter

import (
	"strings"

	kit "hwbot/internal/transport"
)

const telegramTextLimit = kit.MaxTextRunes

// splitText cuts s into chunks of at most limit runes, preferring line
// boundaries. With HTML parse mode a hard cut never lands inside a tag.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	html := strings.EqualFold(parseMode, "HTML")

	var (
		out []string
		cur []rune
	)
	flush := func() {
		if chunk := strings.TrimRight(string(cur), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		cur = cur[:0]
	}
	for _, line := range strings.SplitAfter(s, "\n") {
		rs := []rune(line)
		if len(cur)+len(rs) <= limit {
			cur = append(cur, rs...)
			continue
		}
		flush()
		for len(rs) > limit {
			cut := limit
			if html {
				if open := lastIndexRune(rs[:cut], '<'); open > 0 && open > lastIndexRune(rs[:cut], '>') {
					cut = open
				}
			}
			cur = append(cur, rs[:cut]...)
			flush()
			rs = rs[cut:]
		}
		cur = append(cur, rs...)
	}
	flush()
	if len(out) == 0 {
		return []string{s}
	}
	return out
}

func lastIndexRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
