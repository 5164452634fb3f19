package arena

import (
	"math/rand/v2"
	"strings"
)

const randomCharacters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	// IDLength is the length of every persisted identifier.
	IDLength = 20
	// SessionTokenLength is the length of a session token.
	SessionTokenLength = 40
)

// RandomString returns a new string of a specified size containing only [a-zA-Z0-9] characters
func RandomString(size int) string {
	sb := strings.Builder{}
	sb.Grow(size)
	for ; size > 0; size-- {
		sb.WriteByte(randomCharacters[rand.IntN(len(randomCharacters))])
	}
	return sb.String()
}

// NewID generates a fresh identifier for users, submissions, test runs and announcements.
func NewID() string {
	return RandomString(IDLength)
}
