package validation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Names may carry accents ("José Núñez") as well as spaces, hyphens,
// apostrophes and dots.
var fullnameRe = regexp.MustCompile(`^[\p{L}\p{M}\s\-'.]+$`)

const maxFullnameRunes = 120

func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// IsValidPassword requires at least 8 characters with a letter, a digit and
// a punctuation or symbol character.
func IsValidPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	hasLetter, hasDigit, hasSpecial := false, false, false
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	return hasLetter && hasDigit && hasSpecial
}

func IsValidFullname(fullname string) bool {
	fullname = strings.TrimSpace(fullname)
	return fullname != "" && utf8.RuneCountInString(fullname) <= maxFullnameRunes && fullnameRe.MatchString(fullname)
}
