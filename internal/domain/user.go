// Package domain contains entities and the rules that belong to them, no transport or storage
package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 64
)

type UserID string

// User is a directory entry owned by the external profile store.
type User struct {
	ID         UserID `json:"id"`
	FullName   string `json:"fullName"`
	Email      string `json:"email,omitempty"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// CallerInfo is what the callee sees about who is ringing.
type CallerInfo struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// ParseUserID validates an identity coming from a handshake or a payload.
// Browsers serialise a missing id as "undefined" or "null", both are rejected.
func ParseUserID(raw string) (UserID, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "undefined" || s == "null" {
		return "", ErrInvalidIdentity
	}
	if len(s) > MaxUserIDLen {
		return "", ErrInvalidIdentity
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", ErrInvalidIdentity
		}
	}
	return UserID(s), nil
}

func (id UserID) Valid() bool {
	parsed, err := ParseUserID(string(id))
	return err == nil && parsed == id
}

// Sanitize trims caller-supplied display fields to MaxUsernameLen runes.
func (c CallerInfo) Sanitize() CallerInfo {
	name := strings.TrimSpace(c.DisplayName)
	if utf8.RuneCountInString(name) > MaxUsernameLen {
		name = string([]rune(name)[:MaxUsernameLen])
	}
	c.DisplayName = name
	return c
}
