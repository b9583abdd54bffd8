// Package keyboard renders conversation replies into Telegram HTML text and
// inline keyboards.
package keyboard

import (
	tele "gopkg.in/telebot.v4"

	"hwbot/internal/conversation"
	"hwbot/pkg/tgui"
)

const (
	subjectColumns = 2
	// Longer subject names are cut so two buttons fit a row.
	maxButtonRunes = 24
)

func tok(k conversation.TokenKind) string { return conversation.Token{Kind: k}.Encode() }

// Markup builds the keyboard for m. MenuNone yields nil.
func Markup(m conversation.Menu, subjects []conversation.Subject) (*tele.ReplyMarkup, error) {
	in := tgui.NewInline()
	switch m {
	case conversation.MenuMain:
		in.Row(tgui.Btn("📚 Все ДЗ", tok(conversation.TokenMenuAll)), tgui.Btn("📅 На завтра", tok(conversation.TokenMenuTomorrow))).
			Row(tgui.Btn("🔎 По дате", tok(conversation.TokenMenuByDate)), tgui.Btn("📖 По предмету", tok(conversation.TokenMenuBySubject)))
	case conversation.MenuAdmin:
		in.Row(tgui.Btn("➕ Добавить ДЗ", tok(conversation.TokenAdminAddNotice))).
			Row(tgui.Btn("📣 Рассылка", tok(conversation.TokenAdminBroadcast)))
	case conversation.MenuCancel:
		in.Row(cancelBtn())
	case conversation.MenuSubjects:
		in.Grid(subjectColumns, subjectBtns(subjects)...).Row(tgui.Btn("⬅️ Назад", tok(conversation.TokenBack)))
	case conversation.MenuSubjectsEntry:
		in.Grid(subjectColumns, subjectBtns(subjects)...).Row(cancelBtn())
	default:
		return nil, nil
	}
	return in.Markup()
}

func cancelBtn() tele.Btn { return tgui.Btn("❌ Отмена", tok(conversation.TokenCancel)) }

func subjectBtns(subjects []conversation.Subject) []tele.Btn {
	out := make([]tele.Btn, 0, len(subjects))
	for _, s := range subjects {
		out = append(out, tgui.Btn(tgui.TruncRunes(s.Name, maxButtonRunes), conversation.SubjectToken(s.ID).Encode()))
	}
	return out
}
