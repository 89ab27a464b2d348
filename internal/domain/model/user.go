package model

import (
	"time"

	"telegram-media-generation/internal/domain"
)

// User is a domain entity representing a Telegram user in our system.
// The credit balance is the only contended field; it is mutated exclusively
// through the conditional-update ledger operations on UserRepository, never
// by writing this struct back.
type User struct {
	ID                int64 // Telegram user ID doubles as the primary key
	Username          string
	FirstName         string
	LastName          string
	LanguageCode      string
	Credits           int64
	TotalSpentCredits int64
	TotalGenerations  int64
	IsBanned          bool
	IsAdmin           bool
	RegisteredAt      time.Time
	LastActiveAt      time.Time
}

// StartingCredits is granted once, when the user row is first created.
const StartingCredits = 10

func NewUser(tgID int64, username, firstName, lastName, lang string) (*User, error) {
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if lang == "" {
		lang = "ru"
	}
	now := time.Now()
	return &User{
		ID:           tgID,
		Username:     username,
		FirstName:    firstName,
		LastName:     lastName,
		LanguageCode: lang,
		Credits:      StartingCredits,
		RegisteredAt: now,
		LastActiveAt: now,
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == 0 }
func (u *User) Touch()       { u.LastActiveAt = time.Now() }
