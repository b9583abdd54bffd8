package keyboard

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	"hwbot/internal/conversation"
	"hwbot/internal/datex"
	"hwbot/pkg/tgui"
)

const (
	txtNothingFound = "Ничего не найдено."
	maxTitleRunes   = 200
)

// Rendered is a reply ready for the wire.
type Rendered struct {
	HTML   string
	Markup *tele.ReplyMarkup
}

// Render converts r into HTML text plus keyboard. An empty reply renders to an
// empty HTML string.
func Render(r conversation.Reply) (Rendered, error) {
	if r.Empty() {
		return Rendered{}, nil
	}
	rm, err := Markup(r.Menu, r.Subjects)
	if err != nil {
		return Rendered{}, err
	}
	text := tgui.Esc(r.Text)
	if r.Listing != nil {
		text = tgui.JoinH("\n\n", text, Listing(r.Listing.Items))
	}
	return Rendered{HTML: text.String(), Markup: rm}, nil
}

// Listing formats notices, one block per notice.
func Listing(items []conversation.ListingItem) tgui.H {
	if len(items) == 0 {
		return tgui.Esc(txtNothingFound)
	}
	blocks := make([]string, 0, len(items))
	for _, it := range items {
		blocks = append(blocks, item(it).String())
	}
	return tgui.H(strings.Join(blocks, "\n\n"))
}

func item(it conversation.ListingItem) tgui.H {
	n := it.Notice
	lines := []tgui.H{
		tgui.Esc("📌 " + it.SubjectName + ": " + tgui.TruncRunes(n.Title, maxTitleRunes)),
		tgui.Esc("🗓 На дату: " + datex.Display(n.DueDate)),
	}
	if n.Description != "" {
		lines = append(lines, tgui.Esc("📝 "+n.Description))
	}
	return tgui.JoinH("\n", lines...)
}
