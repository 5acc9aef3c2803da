package accounts

import "errors"

var (
	// ErrInvalidUsername is returned when the username is missing
	ErrInvalidUsername = errors.New("username is required")

	// ErrMissingPassword is returned when the password hash is missing
	ErrMissingPassword = errors.New("password hash is required")

	// ErrInvalidMRN is returned when the MRN is missing
	ErrInvalidMRN = errors.New("mrn is required")

	// ErrUserNotFound is returned when no matching user exists
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when the username is already taken
	ErrUserExists = errors.New("user already exists")

	// ErrPatientExists is returned when the (mrn, mrn_system) pair is taken
	ErrPatientExists = errors.New("patient already exists")
)
