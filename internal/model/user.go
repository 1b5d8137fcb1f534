package model

import "time"

// User represents a registered user account.
//
// WHY PasswordHash AND NOT Password?
// The users table keeps a bcrypt hash in its "password" column. Naming the
// field PasswordHash makes it impossible to confuse with the plaintext the
// user typed, and the `json:"-"` tag keeps it out of every API response.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Username     string    `json:"username"  db:"username"` // UNIQUE in the store
	PasswordHash string    `json:"-"         db:"password"`
	Email        string    `json:"email"     db:"email"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
