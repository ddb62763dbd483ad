package domain

import (
	"errors"
	"strings"
	"time"
)

// Account is the profile document kept in the profile store, one per account.
// AccountID is issued by the identity provider and immutable. EmailVerified is
// mirrored from the provider; the provider's value is authoritative.
// SignupCompleted is bookkeeping for profile completeness and does not gate access.
type Account struct {
	AccountID       string
	Email           string
	DisplayName     string
	Region          string
	IsLocal         bool
	EmailVerified   bool
	SignupCompleted bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate validates the account for persistence. Returns an error describing the first validation failure.
func (a *Account) Validate() error {
	if a.AccountID == "" {
		return errors.New("account id is required")
	}
	if a.Email == "" {
		return errors.New("email is required")
	}
	if a.Region != "" && !ValidRegion(a.Region) {
		return errors.New("unknown region")
	}
	return nil
}

// Principal is the identity handed to downstream UI: a verified account and its
// profile snapshot. Only verified accounts ever become principals.
type Principal struct {
	AccountID string
	Email     string
	Profile   Account
}

// Regions are the selectable administrative regions on the signup form.
var Regions = []string{
	"대전광역시",
	"충청남도",
	"충청북도",
	"서울특별시",
	"부산광역시",
	"인천광역시",
	"광주광역시",
	"대구광역시",
	"울산광역시",
	"경기도",
	"강원도",
	"전라남도",
	"전라북도",
	"경상남도",
	"경상북도",
	"제주특별자치도",
	"세종특별자치시",
}

// ValidRegion reports whether region is one of the fixed selectable regions.
func ValidRegion(region string) bool {
	for _, r := range Regions {
		if r == region {
			return true
		}
	}
	return false
}

// DefaultDisplayName returns the fallback display name for an account whose
// profile document is missing: the local part of the email address.
func DefaultDisplayName(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
