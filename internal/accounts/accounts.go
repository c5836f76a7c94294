// Package accounts implements login, session persistence and the
// manager-only account administration.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/reqsync/internal/access"
	"github.com/roach88/reqsync/internal/model"
)

var (
	// ErrForbidden is returned when the acting user may not manage accounts.
	ErrForbidden = errors.New("only managers can manage accounts")

	// ErrProtected is returned when deleting the reserved account or oneself.
	ErrProtected = errors.New("account cannot be deleted")

	// ErrNotLoggedIn is returned when no session is stored.
	ErrNotLoggedIn = errors.New("not logged in")
)

// Remote is the account part of the API.
type Remote interface {
	Login(ctx context.Context, username, password string) (model.User, error)
	GetUsers(ctx context.Context) ([]model.User, error)
	CreateUser(ctx context.Context, u model.User, password string) error
	UpdateUser(ctx context.Context, u model.User, password string) error
	DeleteUser(ctx context.Context, username string) error
	ChangePassword(ctx context.Context, username, newPassword, oldPassword string) error
}

// SessionStore keeps the logged-in identity between runs.
type SessionStore interface {
	ReadSession(ctx context.Context) (model.User, bool)
	WriteSession(ctx context.Context, u model.User)
	ClearSession(ctx context.Context)
}

// Service applies the account rules in front of the API.
type Service struct {
	remote   Remote
	sessions SessionStore
	logger   *slog.Logger
}

// NewService creates a Service. A nil logger uses slog.Default.
func NewService(r Remote, sessions SessionStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{remote: r, sessions: sessions, logger: logger}
}

type credentials struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

// Login verifies the credentials and stores the session.
func (s *Service) Login(ctx context.Context, username, password string) (model.User, error) {
	username = strings.TrimSpace(username)
	if err := check(credentials{Username: username, Password: password}); err != nil {
		return model.User{}, err
	}
	u, err := s.remote.Login(ctx, username, password)
	if err != nil {
		return model.User{}, fmt.Errorf("login %s: %w", username, err)
	}
	s.sessions.WriteSession(ctx, u)
	s.logger.Info("logged in", "user", u.Username, "role", u.Role)
	return u, nil
}

// Logout forgets the stored session.
func (s *Service) Logout(ctx context.Context) {
	s.sessions.ClearSession(ctx)
	s.logger.Info("logged out")
}

// Current returns the stored session.
func (s *Service) Current(ctx context.Context) (model.User, error) {
	u, ok := s.sessions.ReadSession(ctx)
	if !ok {
		return model.User{}, ErrNotLoggedIn
	}
	return u, nil
}

// List returns every account. Managers only.
func (s *Service) List(ctx context.Context, actor model.User) ([]model.User, error) {
	if !access.CanManageUsers(actor) {
		return nil, ErrForbidden
	}
	return s.remote.GetUsers(ctx)
}

type newAccount struct {
	User     model.User
	Password string `validate:"required,min=4,max=128"`
}

// Create adds an account. Managers only.
func (s *Service) Create(ctx context.Context, actor, u model.User, password string) error {
	if !access.CanManageUsers(actor) {
		return ErrForbidden
	}
	u.Username = strings.TrimSpace(u.Username)
	if err := check(newAccount{User: u, Password: password}); err != nil {
		return err
	}
	if err := s.remote.CreateUser(ctx, u, password); err != nil {
		return fmt.Errorf("create user %s: %w", u.Username, err)
	}
	s.logger.Info("account created", "actor", actor.Username, "user", u.Username, "role", u.Role)
	return nil
}

type accountUpdate struct {
	User     model.User
	Password string `validate:"omitempty,min=4,max=128"`
}

// Update changes an account's name and role; a non-empty password replaces
// the stored one. Managers only.
func (s *Service) Update(ctx context.Context, actor, u model.User, password string) error {
	if !access.CanManageUsers(actor) {
		return ErrForbidden
	}
	if err := check(accountUpdate{User: u, Password: password}); err != nil {
		return err
	}
	if err := s.remote.UpdateUser(ctx, u, password); err != nil {
		return fmt.Errorf("update user %s: %w", u.Username, err)
	}
	s.logger.Info("account updated", "actor", actor.Username, "user", u.Username, "role", u.Role)
	return nil
}

// Delete removes an account. Managers only; the reserved account and the
// actor's own account are protected.
func (s *Service) Delete(ctx context.Context, actor model.User, username string) error {
	if !access.CanManageUsers(actor) {
		return ErrForbidden
	}
	if username == model.ReservedUsername || username == actor.Username {
		return fmt.Errorf("delete %s: %w", username, ErrProtected)
	}
	if err := s.remote.DeleteUser(ctx, username); err != nil {
		return fmt.Errorf("delete user %s: %w", username, err)
	}
	s.logger.Info("account deleted", "actor", actor.Username, "user", username)
	return nil
}

type passwordChange struct {
	Username    string `validate:"required"`
	NewPassword string `validate:"required,min=4,max=128"`
	OldPassword string `validate:"required_if=Self true"`
	Self        bool
}

// ChangePassword sets a new password for username. Managers reset any
// password without the old one; everyone else may only change their own and
// must supply the current password.
func (s *Service) ChangePassword(ctx context.Context, actor model.User, username, newPassword, oldPassword string) error {
	manager := access.CanManageUsers(actor)
	if username == "" {
		username = actor.Username
	}
	if !manager && username != actor.Username {
		return ErrForbidden
	}
	if manager {
		oldPassword = ""
	}
	if err := check(passwordChange{
		Username:    username,
		NewPassword: newPassword,
		OldPassword: oldPassword,
		Self:        !manager,
	}); err != nil {
		return err
	}
	if err := s.remote.ChangePassword(ctx, username, newPassword, oldPassword); err != nil {
		return fmt.Errorf("change password for %s: %w", username, err)
	}
	s.logger.Info("password changed", "actor", actor.Username, "user", username, "reset", manager)
	return nil
}

// FieldError is one failed rule.
type FieldError struct {
	Field string
	Rule  string
	Param string
}

func (f FieldError) String() string {
	if f.Param != "" {
		return fmt.Sprintf("%s: %s=%s", f.Field, f.Rule, f.Param)
	}
	return fmt.Sprintf("%s: %s", f.Field, f.Rule)
}

// ValidationError lists every input rule that failed.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func check(v any) error {
	err := model.Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make([]FieldError, len(verrs))}
	for i, fe := range verrs {
		out.Fields[i] = FieldError{
			Field: strings.TrimPrefix(fe.Namespace(), rootName(fe.Namespace())),
			Rule:  fe.Tag(),
			Param: fe.Param(),
		}
	}
	return out
}

// rootName returns the leading "Type." of a validator namespace.
func rootName(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[:i+1]
	}
	return ""
}
