package registration

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Genders accepted by the registration form.
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// Form carries the fields a patient submits to self-register.
type Form struct {
	GivenNames       string
	FamilyName1      string
	FamilyName2      string
	Gender           string
	IDDocumentNumber string
	PhoneNumber      string
	Email            string
	BirthDate        time.Time
	InsurerID        int
	Province         string
	Municipality     string
}

// Validate checks required fields and formats.
func (f *Form) Validate() error {
	f.GivenNames = strings.TrimSpace(f.GivenNames)
	f.FamilyName1 = strings.TrimSpace(f.FamilyName1)
	f.FamilyName2 = strings.TrimSpace(f.FamilyName2)
	f.IDDocumentNumber = strings.TrimSpace(f.IDDocumentNumber)
	f.PhoneNumber = strings.TrimSpace(f.PhoneNumber)
	f.Email = strings.TrimSpace(f.Email)
	f.Province = strings.TrimSpace(f.Province)
	f.Municipality = strings.TrimSpace(f.Municipality)

	switch {
	case f.GivenNames == "":
		return fmt.Errorf("registration: given names required")
	case f.FamilyName1 == "":
		return fmt.Errorf("registration: first family name required")
	case f.Gender != GenderMale && f.Gender != GenderFemale:
		return fmt.Errorf("registration: gender must be male or female")
	case f.IDDocumentNumber == "" || len(f.IDDocumentNumber) > 20:
		return fmt.Errorf("registration: invalid id document number")
	case f.PhoneNumber == "":
		return fmt.Errorf("registration: phone number required")
	case f.BirthDate.IsZero():
		return fmt.Errorf("registration: birth date required")
	case f.InsurerID <= 0:
		return fmt.Errorf("registration: insurer required")
	case f.Province == "":
		return fmt.Errorf("registration: province required")
	case f.Municipality == "":
		return fmt.Errorf("registration: municipality required")
	}
	if _, err := mail.ParseAddress(f.Email); err != nil {
		return fmt.Errorf("registration: invalid email address")
	}
	return nil
}

// sexCode translates the form gender into the vendor's numeric code.
func (f *Form) sexCode() string {
	if f.Gender == GenderFemale {
		return "2"
	}
	return "1"
}
