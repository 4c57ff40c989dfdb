package services

import (
	"crypto/rand"
	"strings"

	"github.com/gosimple/slug"
	"github.com/gosimple/unidecode"
	"golang.org/x/text/unicode/norm"
)

const (
	codeMinLen       = 3
	codeMaxLen       = 15
	candidateLen     = 8
	candidateCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Substrings no user-chosen code may contain (checked after normalization).
var reservedWords = []string{
	"ADMIN",
	"TEST",
	"REFERRAL",
	"SUPPORT",
	"OFFICIAL",
	"SYSTEM",
	"STAFF",
}

// GenerateCandidateCode returns a random 8-char uppercase alphanumeric code.
// Collisions across the user base are rare but possible; the store's unique
// constraint, not this function, guarantees uniqueness.
func GenerateCandidateCode() string {
	b := make([]byte, candidateLen)
	rand.Read(b) // never fails as of Go 1.24
	for i := range b {
		b[i] = candidateCharset[int(b[i])%len(candidateCharset)]
	}
	return string(b)
}

// NormalizeCode canonicalizes user input before validation or lookup: trim,
// NFKC fold, transliterate to ASCII, uppercase. All code comparisons in this
// service go through this.
func NormalizeCode(raw string) string {
	s := strings.TrimSpace(raw)
	s = norm.NFKC.String(s)
	s = unidecode.Unidecode(s)
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidateCustomCode checks a user-supplied code against the format rules and
// returns the normalized code. Rules are checked in order and the first
// failure wins. Uniqueness is not checked here; that needs the store.
func ValidateCustomCode(raw string) (string, error) {
	code := NormalizeCode(raw)

	if len(code) < codeMinLen || len(code) > codeMaxLen {
		return "", &ValidationError{
			Rule:       "length",
			Message:    "referral code must be between 3 and 15 characters",
			Suggestion: suggestCode(code),
		}
	}

	for _, r := range code {
		if !isCodeChar(r) {
			return "", &ValidationError{
				Rule:       "charset",
				Message:    "referral code may only contain letters, digits, '-' and '_'",
				Suggestion: suggestCode(code),
			}
		}
	}

	if !strings.ContainsFunc(code, func(r rune) bool { return r >= 'A' && r <= 'Z' }) {
		return "", &ValidationError{
			Rule:       "letter",
			Message:    "referral code must contain at least one letter",
			Suggestion: suggestCode(code),
		}
	}

	for _, word := range reservedWords {
		if strings.Contains(code, word) {
			return "", &ValidationError{
				Rule:       "reserved",
				Message:    "referral code contains a reserved word",
				Suggestion: GenerateCandidateCode(),
			}
		}
	}

	return code, nil
}

func isCodeChar(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}

// suggestCode builds a usable alternative from whatever the user typed,
// falling back to a random candidate when nothing salvageable remains.
func suggestCode(input string) string {
	s := strings.ToUpper(slug.Make(input))
	if len(s) > codeMaxLen {
		s = s[:codeMaxLen]
	}
	if len(s) < codeMinLen || !strings.ContainsFunc(s, func(r rune) bool { return r >= 'A' && r <= 'Z' }) {
		return GenerateCandidateCode()
	}
	for _, word := range reservedWords {
		if strings.Contains(s, word) {
			return GenerateCandidateCode()
		}
	}
	return s
}
