package tgui

import (
	"html"
	"strings"
)

// H is text already safe for ParseMode=HTML.
type H string

func (h H) String() string { return string(h) }

// Esc escapes user-provided text.
func Esc(s string) H { return H(html.EscapeString(s)) }

// JoinH joins parts with sep, skipping blank ones.
func JoinH(sep string, parts ...H) H {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p.String()) == "" {
			continue
		}
		ss = append(ss, p.String())
	}
	return H(strings.Join(ss, sep))
}
