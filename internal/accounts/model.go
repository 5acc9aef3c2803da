// Package accounts persists local portal accounts: a User credential
// record and its linked Patient identity row.
package accounts

import (
	"strings"
	"time"
)

// User is a local portal account. A user whose password is expired and
// whose one-time password has already been used is locked out until an
// administrator intervenes.
type User struct {
	ID                int64
	Username          string
	Name              string
	Email             string
	Phone             string
	HashedPassword    string
	IsPasswordExpired bool
	OTPPasswordUsed   bool
	IsActive          bool
	IsSuperuser       bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
	DeletedBy         *int64
}

// Patient links a User to an external medical record. The (MRN,
// MRNSystem) pair is unique.
type Patient struct {
	ID          int64
	UserID      int64
	MRN         string
	MRNSystem   string
	Name        string
	DateOfBirth *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
	DeletedBy   *int64
}

// NewUser is the payload for creating a user row.
type NewUser struct {
	Username       string
	Name           string
	Email          string
	Phone          string
	HashedPassword string
	// New accounts start with an expired one-time password that must be
	// changed on first login.
	IsPasswordExpired bool
}

// NewPatient is the payload for creating a patient row.
type NewPatient struct {
	MRN         string
	MRNSystem   string
	Name        string
	DateOfBirth *time.Time
}

// Validate checks the required fields of a user payload.
func (u *NewUser) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return ErrInvalidUsername
	}
	if u.HashedPassword == "" {
		return ErrMissingPassword
	}
	return nil
}

// Validate checks the required fields of a patient payload.
func (p *NewPatient) Validate() error {
	if strings.TrimSpace(p.MRN) == "" {
		return ErrInvalidMRN
	}
	return nil
}
