package conversation

import (
	"hwbot/internal/storage"
)

// Menu names a button layout; the Telegram layer renders it.
type Menu int

const (
	MenuNone Menu = iota
	MenuMain
	MenuAdmin
	MenuCancel
	// MenuSubjects lists the catalog with a back button (browsing).
	MenuSubjects
	// MenuSubjectsEntry lists the catalog with a cancel button (notice entry).
	MenuSubjectsEntry
)

// Event is one inbound user action: either Text or a decoded button Token.
type Event struct {
	UserID    int64
	FirstName string
	Username  string
	ChatID    int64

	Text  string
	Token *Token
}

func (e Event) isButton() bool { return e.Token != nil }

// Reply is what the user should see. A zero Reply means "say nothing".
type Reply struct {
	// Text is plain text; the renderer escapes it.
	Text string
	// Listing, when non-nil, is rendered under Text (empty means "nothing found").
	Listing *Listing
	Menu    Menu
	// Subjects is the catalog for the subject menus.
	Subjects []Subject

	// Toast answers a button press; Alert shows it as a modal popup.
	Toast string
	Alert bool
}

// Empty reports whether the reply carries no message.
func (r Reply) Empty() bool { return r.Text == "" && r.Listing == nil }

type Listing struct {
	Items []ListingItem
}

type ListingItem struct {
	Notice      storage.Notice
	SubjectName string
}
