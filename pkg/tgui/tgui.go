package tgui

import (
	"fmt"

	tele "gopkg.in/telebot.v4"
)

// Inline accumulates rows for an inline keyboard.
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
	err  error
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends one row. Buttons with oversized callback data poison the builder;
// Markup then reports the first such error.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	for _, b := range btn {
		if err := CheckData(b.Data); err != nil && i.err == nil {
			i.err = fmt.Errorf("button %q: %w", b.Text, err)
		}
	}
	i.rows = append(i.rows, i.rm.Row(btn...))
	return i
}

// Grid lays buttons out cols per row; the last row may be shorter.
func (i *Inline) Grid(cols int, btn ...tele.Btn) *Inline {
	if cols <= 0 {
		cols = 1
	}
	for start := 0; start < len(btn); start += cols {
		end := min(start+cols, len(btn))
		i.Row(btn[start:end]...)
	}
	return i
}


// Markup returns the finished keyboard.
func (i *Inline) Markup() (*tele.ReplyMarkup, error) {
	if i.err != nil {
		return nil, i.err
	}
	i.rm.Inline(i.rows...)
	return i.rm, nil
}

// Btn creates a callback button; data is sent back verbatim.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}
