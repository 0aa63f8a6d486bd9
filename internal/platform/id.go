package platform

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// NewID returns a new stable site identifier. IDs are never reused.
func NewID() string {
	return uuid.New().String()
}

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const passwordLength = 24

// NewPassword returns a random password for generated database credentials.
func NewPassword() string {
	b := make([]byte, passwordLength)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	for i := range b {
		b[i] = passwordAlphabet[b[i]%byte(len(passwordAlphabet))]
	}
	return string(b)
}
