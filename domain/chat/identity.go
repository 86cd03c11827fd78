package chat

// Identity is the resolved, already authenticated view of a user.
// It is captured once when a connection opens and is never refreshed
// while the connection lives.
type Identity struct {
	UserKey     string
	DisplayName string
	IsAdmin     bool
	IsPremium   bool
	AvatarURL   string
}

// CanModerate reports whether the identity may delete any message.
func (i Identity) CanModerate() bool {
	return i.IsAdmin
}

// CanEdit reports whether the identity may change the content of m.
func (i Identity) CanEdit(m Message) bool {
	return i.IsAdmin || (i.UserKey != "" && i.UserKey == m.AuthorID())
}
