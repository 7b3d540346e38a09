package security

import (
	"fmt"
	"strings"
	"unicode"
)

const minPasswordLength = 8

// ValidatePassword applies the account password rules. A password must meet
// the minimum length, contain something other than digits and differ from
// both the username and the local part of the email.
func ValidatePassword(password, username, email string) error {
	if len([]rune(password)) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	if strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		return fmt.Errorf("password cannot be entirely numeric")
	}

	lowered := strings.ToLower(password)
	if u := strings.ToLower(strings.TrimSpace(username)); u != "" && lowered == u {
		return fmt.Errorf("password is too similar to the username")
	}
	local, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@")
	if local != "" && lowered == local {
		return fmt.Errorf("password is too similar to the email")
	}
	return nil
}
