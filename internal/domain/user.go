package domain

import "strings"

type User struct {
	ID                   string
	Email                string
	PasswordHash         string
	Role                 Role
	EmailVerified        bool
	SecondFactorRequired bool
}

// NormalizeIdentifier is the canonical form of a login identifier (email).
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
