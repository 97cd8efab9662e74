package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"
)

const masterCodeLen = 6

// MasterCode derives the emergency verification code for the UTC calendar
// day containing t: the first six upper-case hex digits of
// SHA-256(salt + "YYYY-MM-DD"). It returns "" when salt is empty.
func MasterCode(salt string, t time.Time) string {
	if salt == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(salt + t.UTC().Format(time.DateOnly)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:masterCodeLen]
}

// matchesMasterCode compares submitted against today's master code.
func (s *Service) matchesMasterCode(submitted string) bool {
	want := MasterCode(s.masterSalt, s.now())
	if want == "" {
		return false
	}
	got := strings.ToUpper(strings.TrimSpace(submitted))
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
