package domain

import "time"

// User is the local projection of a storefront user, kept for review author
// names.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity is the acting user of a request, resolved once at the transport
// boundary. The zero value is an anonymous caller.
type Identity struct {
	UserID string
}

// Authenticated reports whether the identity belongs to a signed-in user.
func (i Identity) Authenticated() bool {
	return i.UserID != ""
}
