package conversation

import "strings"

// TokenKind enumerates every button the bot renders. Anything else decodes to
// TokenUnknown.
type TokenKind int

const (
	TokenUnknown TokenKind = iota
	TokenMenuAll
	TokenMenuTomorrow
	TokenMenuByDate
	TokenMenuBySubject
	TokenAdminAddNotice
	TokenAdminBroadcast
	TokenSubject
	TokenBack
	TokenCancel
)

// Token is a decoded button payload. Subject is set only for TokenSubject.
type Token struct {
	Kind    TokenKind
	Subject string
}

var fixedTokens = map[string]TokenKind{
	"MENU:ALL":        TokenMenuAll,
	"MENU:TOMORROW":   TokenMenuTomorrow,
	"MENU:BY_DATE":    TokenMenuByDate,
	"MENU:BY_SUBJECT": TokenMenuBySubject,
	"ADMIN:ADD_HW":    TokenAdminAddNotice,
	"ADMIN:BROADCAST": TokenAdminBroadcast,
	"BACK:MAIN":       TokenBack,
	"ACTION:CANCEL":   TokenCancel,
}

const subjectPrefix = "SUBJECT:"

// DecodeToken maps raw callback data onto a Token. It never fails.
func DecodeToken(data string) Token {
	data = strings.TrimSpace(data)
	if k, ok := fixedTokens[data]; ok {
		return Token{Kind: k}
	}
	if tag, ok := strings.CutPrefix(data, subjectPrefix); ok && tag != "" {
		return Token{Kind: TokenSubject, Subject: tag}
	}
	return Token{Kind: TokenUnknown}
}

// Encode is the inverse of DecodeToken; TokenUnknown encodes to "".
func (t Token) Encode() string {
	if t.Kind == TokenSubject {
		if t.Subject == "" {
			return ""
		}
		return subjectPrefix + t.Subject
	}
	for data, k := range fixedTokens {
		if k == t.Kind {
			return data
		}
	}
	return ""
}

func SubjectToken(tag string) Token { return Token{Kind: TokenSubject, Subject: tag} }
