package conversation

import "time"

type Subject struct {
	ID   string
	Name string
}

// Settings is the hot-reloadable part of the configuration the router reads
// on every event.
type Settings struct {
	Admins   map[int64]struct{}
	Subjects []Subject
	Location *time.Location
}

func (s Settings) IsAdmin(userID int64) bool {
	_, ok := s.Admins[userID]
	return ok
}

func (s Settings) subject(id string) (Subject, bool) {
	for _, sub := range s.Subjects {
		if sub.ID == id {
			return sub, true
		}
	}
	return Subject{}, false
}

// subjectName falls back to the tag for notices whose subject left the catalog.
func (s Settings) subjectName(id string) string {
	if sub, ok := s.subject(id); ok {
		return sub.Name
	}
	return id
}

func (s Settings) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}
