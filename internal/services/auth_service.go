package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"spendwise/internal/auth"
	"spendwise/internal/core"
	"spendwise/internal/log"
	"spendwise/internal/ports"
)

// ErrWrongPassword is returned by ChangePassword when the current password
// does not match.
var ErrWrongPassword = errors.New("current password is incorrect")

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ProfilePatch struct {
	Name        *string `json:"name"`
	AvatarColor *string `json:"avatarColor"`
}

type PasswordChange struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Session is a user together with a freshly issued token.
type Session struct {
	User  core.User `json:"user"`
	Token string    `json:"token"`
}

// RecurringRunner is the part of the recurring engine login depends on.
type RecurringRunner interface {
	RunToday(ctx context.Context, userID string) RunReport
}

type AuthService struct {
	users     ports.UserStore
	issuer    *auth.Issuer
	recurring RecurringRunner
	clock     core.Clock
	logger    *log.Logger
	newID     func() string
}

func NewAuthService(users ports.UserStore, issuer *auth.Issuer, recurring RecurringRunner, clock core.Clock, logger *log.Logger) *AuthService {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &AuthService{
		users:     users,
		issuer:    issuer,
		recurring: recurring,
		clock:     clock,
		logger:    logger.WithComponent(log.ComponentAuth),
		newID:     uuid.NewString,
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (Session, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return Session{}, core.Invalid("name, email and password", core.ErrMissingRequiredField)
	}
	if err := core.ValidatePassword(in.Password); err != nil {
		return Session{}, err
	}

	now := s.clock.Now().UTC()
	u := core.User{
		ID:          s.newID(),
		Name:        strings.TrimSpace(in.Name),
		Email:       core.NormalizeEmail(in.Email),
		AvatarColor: core.DefaultAvatarColor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := u.Validate(); err != nil {
		return Session{}, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return Session{}, err
	}
	u.PasswordHash = hash

	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("save user: %w", err)
	}
	token, err := s.issuer.Issue(u.ID)
	if err != nil {
		return Session{}, err
	}
	s.logger.InfoContext(ctx, "User registered",
		log.FieldUserID, u.ID,
		log.FieldOperation, log.OpRegister)
	return Session{User: u, Token: token}, nil
}

// Login checks the credentials, then brings the user's recurring rules up to
// date before issuing a token. Engine failures never fail the login.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (Session, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return Session{}, core.Invalid("email and password", core.ErrMissingRequiredField)
	}
	u, err := s.users.GetUserByEmail(ctx, core.NormalizeEmail(in.Email))
	if errors.Is(err, ports.ErrNotFound) {
		return Session{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("find user: %w", err)
	}
	if err := auth.CheckPassword(u.PasswordHash, in.Password); err != nil {
		return Session{}, err
	}

	if s.recurring != nil {
		report := s.recurring.RunToday(ctx, u.ID)
		if report.Err != nil || report.Failed > 0 {
			s.logger.WarnContext(ctx, "Recurring run at login had failures",
				log.FieldUserID, u.ID,
				log.FieldFailed, report.Failed,
				log.FieldError, report.Err)
		}
	}

	token, err := s.issuer.Issue(u.ID)
	if err != nil {
		return Session{}, err
	}
	s.logger.InfoContext(ctx, "User logged in",
		log.FieldUserID, u.ID,
		log.FieldOperation, log.OpLogin)
	return Session{User: u, Token: token}, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (core.User, error) {
	return s.users.GetUser(ctx, userID)
}

// UserExists backs the token middleware's subject check.
func (s *AuthService) UserExists(ctx context.Context, userID string) (bool, error) {
	_, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, ports.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (core.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return core.User{}, err
	}
	if patch.Name != nil {
		u.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.AvatarColor != nil {
		u.AvatarColor = strings.TrimSpace(*patch.AvatarColor)
	}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	u.UpdatedAt = s.clock.Now().UTC()
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return core.User{}, err
	}
	return u, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID string, in PasswordChange) error {
	if in.CurrentPassword == "" || in.NewPassword == "" {
		return core.Invalid("currentPassword and newPassword", core.ErrMissingRequiredField)
	}
	if err := core.ValidatePassword(in.NewPassword); err != nil {
		return err
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := auth.CheckPassword(u.PasswordHash, in.CurrentPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return ErrWrongPassword
		}
		return err
	}
	hash, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.UpdatedAt = s.clock.Now().UTC()
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Password changed", log.FieldUserID, userID)
	return nil
}
