package service

import (
	"regexp"
	"strings"

	"github.com/BrandonDHaskell/accessmon/internal/accessmon/types"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@(?:[A-Za-z0-9-]+\.)+[A-Za-z]{2,7}$`)

func normalizeUserID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrInvalidUserID
	}
	return userID, nil
}

// normalizeProfile trims every field and checks that all are present and
// the email is well formed. p is not modified.
func normalizeProfile(p types.Profile) (types.Profile, error) {
	out := types.Profile{
		Name:       strings.TrimSpace(p.Name),
		Email:      strings.TrimSpace(p.Email),
		Department: strings.TrimSpace(p.Department),
	}
	if out.Name == "" || out.Email == "" || out.Department == "" {
		return types.Profile{}, ErrInvalidProfile
	}
	if !emailPattern.MatchString(out.Email) {
		return types.Profile{}, ErrInvalidEmail
	}
	return out, nil
}
