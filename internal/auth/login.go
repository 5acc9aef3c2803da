package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/zenohealth/salus/internal/accounts"
	"github.com/zenohealth/salus/pkg/logging"
)

// LoginState classifies the outcome of a credential check.
type LoginState int

const (
	// StateInvalidCredentials means the username is unknown or the
	// password does not match.
	StateInvalidCredentials LoginState = iota

	// StateLocked means the password expired and its one-time value
	// was already consumed. Only an administrator can unlock.
	StateLocked

	// StateForcedReset means the user authenticated with a one-time
	// password and must now choose their own before entering.
	StateForcedReset

	// StateAuthenticated means credentials are valid and current.
	StateAuthenticated
)

func (s LoginState) String() string {
	switch s {
	case StateInvalidCredentials:
		return "invalid_credentials"
	case StateLocked:
		return "locked"
	case StateForcedReset:
		return "forced_reset"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// LoginResult carries the state and, when known, the matched user.
type LoginResult struct {
	State LoginState
	User  *accounts.User
}

// LoginService runs the credential state machine over the account store.
type LoginService struct {
	repo   accounts.Repository
	logger *logging.Logger
}

func NewLoginService(repo accounts.Repository, logger *logging.Logger) *LoginService {
	if logger == nil {
		logger = logging.Default()
	}
	return &LoginService{repo: repo, logger: logger}
}

// Login checks credentials and classifies the account. When the account
// holds an unused one-time password, the password is burned here so a
// second attempt with the same credentials reads as locked.
func (s *LoginService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, accounts.ErrUserNotFound) {
			return LoginResult{State: StateInvalidCredentials}, nil
		}
		return LoginResult{}, fmt.Errorf("auth: lookup user: %w", err)
	}
	if !user.IsActive || !VerifyPassword(user.HashedPassword, password) {
		return LoginResult{State: StateInvalidCredentials}, nil
	}

	if user.IsPasswordExpired {
		if user.OTPPasswordUsed {
			s.logger.Warn("login attempt on locked account", "user_id", user.ID)
			return LoginResult{State: StateLocked, User: user}, nil
		}
		if err := s.repo.MarkOTPUsed(ctx, user.ID); err != nil {
			return LoginResult{}, fmt.Errorf("auth: burn one-time password: %w", err)
		}
		s.logger.Info("one-time password consumed, forcing reset", "user_id", user.ID)
		return LoginResult{State: StateForcedReset, User: user}, nil
	}

	return LoginResult{State: StateAuthenticated, User: user}, nil
}
