package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role distinguishes accounts that publish media from accounts that watch it.
type Role string

const (
	RoleCreator Role = "creator"
	RoleFan     Role = "fan"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCreator || r == RoleFan
}

// Visibility is the per-video policy tag consulted by the access engine.
type Visibility string

const (
	VisibilityPublic      Visibility = "public"
	VisibilitySubscribers Visibility = "subscribers"
	VisibilityForSale     Visibility = "for-sale"
)

// Valid reports whether v is a known visibility class.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilitySubscribers, VisibilityForSale:
		return true
	}
	return false
}

// User represents an account on the Rai Bee platform.
type User struct {
	ID        string
	Name      string
	Email     string
	Password  string
	Role      Role
	CreatedAt time.Time
}

// Video is an uploaded media asset. StorageRef names the encrypted container in
// blob storage and is unrelated to the uploaded filename.
type Video struct {
	ID         string
	OwnerID    string
	OwnerName  string
	OwnerEmail string
	Title      string
	StorageRef string
	PriceCents int64
	Visibility Visibility
	CreatedAt  time.Time
}

// Price renders PriceCents as a decimal currency amount.
func (v Video) Price() string {
	return FormatCents(v.PriceCents)
}

// Purchase records that a user may access a video. Several purchases for the
// same pair are allowed.
type Purchase struct {
	ID                string
	UserID            string
	VideoID           string
	Provider          string
	ProviderPaymentID string
	CreatedAt         time.Time
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// FormatCents renders minor currency units as "12.34".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// MaxPriceCents is the largest price a NUMERIC(12,2) column can hold.
const MaxPriceCents int64 = 999999999999

// ParseCents converts a decimal amount such as "12", "12.5" or "12.34" into
// minor units. Empty input is zero. Only ASCII digits and one decimal point
// are accepted; signs, more than two fractional digits and amounts above
// MaxPriceCents are rejected.
func ParseCents(amount string) (int64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, nil
	}

	whole, frac, hasFrac := strings.Cut(amount, ".")
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) {
		return 0, fmt.Errorf("price %q must be a non-negative decimal amount", amount)
	}
	if hasFrac && (len(frac) == 0 || len(frac) > 2 || !isDigits(frac)) {
		return 0, fmt.Errorf("price %q must have one or two decimal places", amount)
	}

	whole = strings.TrimLeft(whole, "0")
	if len(whole) > 10 {
		return 0, fmt.Errorf("price %q is too large", amount)
	}
	var units int64
	if whole != "" {
		var err error
		if units, err = strconv.ParseInt(whole, 10, 64); err != nil {
			return 0, fmt.Errorf("parse price %q: %w", amount, err)
		}
	}

	var cents int64
	if hasFrac {
		if len(frac) == 1 {
			frac += "0"
		}
		cents = int64(frac[0]-'0')*10 + int64(frac[1]-'0')
	}

	total := units*100 + cents
	if total > MaxPriceCents {
		return 0, fmt.Errorf("price %q is too large", amount)
	}
	return total, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
