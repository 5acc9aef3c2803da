package accounts

import (
	"context"
	"sync"
	"time"
)

// Repository defines the interface for account storage
type Repository interface {
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetActiveUserByID(ctx context.Context, id int64) (*User, error)
	GetPatientByUserID(ctx context.Context, userID int64) (*Patient, error)

	// CreateUserWithPatient creates both rows atomically; on failure
	// neither row exists.
	CreateUserWithPatient(ctx context.Context, user NewUser, patient NewPatient) (*User, *Patient, error)

	// MarkOTPUsed burns the one-time password of an expired account.
	MarkOTPUsed(ctx context.Context, userID int64) error

	// UpdatePassword is the self-service change: it clears both the
	// expiry and the used-OTP flags.
	UpdatePassword(ctx context.Context, userID int64, hashedPassword string) error

	// ResetPassword is the admin/forgot-password change: it re-arms
	// expiry so the new one-time password must itself be consumed.
	ResetPassword(ctx context.Context, userID int64, hashedPassword string) error

	SoftDeleteUser(ctx context.Context, userID, deletedBy int64) error
}

// InMemoryRepository is a stub implementation of Repository using
// in-memory storage
type InMemoryRepository struct {
	mu       sync.RWMutex
	nextID   int64
	users    map[int64]*User
	patients map[int64]*Patient // keyed by user id
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:    make(map[int64]*User),
		patients: make(map[int64]*Patient),
	}
}

// GetUserByUsername retrieves a user by username
func (r *InMemoryRepository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username && u.DeletedAt == nil {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

// GetActiveUserByID retrieves an active, non-deleted user by id
func (r *InMemoryRepository) GetActiveUserByID(ctx context.Context, id int64) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok || !u.IsActive || u.DeletedAt != nil {
		return nil, ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

// GetPatientByUserID retrieves the patient linked to a user
func (r *InMemoryRepository) GetPatientByUserID(ctx context.Context, userID int64) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[userID]
	if !ok || p.DeletedAt != nil {
		return nil, ErrUserNotFound
	}
	clone := *p
	return &clone, nil
}

// CreateUserWithPatient creates both records, enforcing the same unique
// constraints the database would
func (r *InMemoryRepository) CreateUserWithPatient(ctx context.Context, user NewUser, patient NewPatient) (*User, *Patient, error) {
	if err := user.Validate(); err != nil {
		return nil, nil, err
	}
	if err := patient.Validate(); err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == user.Username {
			return nil, nil, ErrUserExists
		}
	}
	for _, p := range r.patients {
		if p.MRN == patient.MRN && p.MRNSystem == patient.MRNSystem {
			return nil, nil, ErrPatientExists
		}
	}

	now := time.Now().UTC()
	r.nextID++
	u := &User{
		ID:                r.nextID,
		Username:          user.Username,
		Name:              user.Name,
		Email:             user.Email,
		Phone:             user.Phone,
		HashedPassword:    user.HashedPassword,
		IsPasswordExpired: user.IsPasswordExpired,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	r.nextID++
	p := &Patient{
		ID:          r.nextID,
		UserID:      u.ID,
		MRN:         patient.MRN,
		MRNSystem:   patient.MRNSystem,
		Name:        patient.Name,
		DateOfBirth: patient.DateOfBirth,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.users[u.ID] = u
	r.patients[u.ID] = p

	uc, pc := *u, *p
	return &uc, &pc, nil
}

// MarkOTPUsed burns the one-time password
func (r *InMemoryRepository) MarkOTPUsed(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.OTPPasswordUsed = true
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdatePassword applies a self-service password change
func (r *InMemoryRepository) UpdatePassword(ctx context.Context, userID int64, hashedPassword string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.HashedPassword = hashedPassword
	u.IsPasswordExpired = false
	u.OTPPasswordUsed = false
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// ResetPassword applies an admin/forgot-password reset
func (r *InMemoryRepository) ResetPassword(ctx context.Context, userID int64, hashedPassword string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.HashedPassword = hashedPassword
	u.IsPasswordExpired = true
	u.OTPPasswordUsed = false
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// SoftDeleteUser marks user and linked patient deleted
func (r *InMemoryRepository) SoftDeleteUser(ctx context.Context, userID, deletedBy int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	now := time.Now().UTC()
	u.DeletedAt = &now
	u.DeletedBy = &deletedBy
	if p, ok := r.patients[userID]; ok {
		p.DeletedAt = &now
		p.DeletedBy = &deletedBy
	}
	return nil
}
