package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lomect/accountd/internal/email"
	"github.com/lomect/accountd/internal/errorz"
	"github.com/lomect/accountd/internal/krypto"
)

const (
	// TemplateConfirmAccount is the email sent after registration and on resend.
	TemplateConfirmAccount = "confirm-account"
	// TemplateResetPassword is the email sent on resend when the user forgot their password.
	TemplateResetPassword = "reset-password"

	defaultPageSize = 10
	maxPageSize     = 100
)

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	// RegenerateBelow is the remaining session lifetime under which a login
	// replaces the session token, and above which a resend is refused.
	RegenerateBelow time.Duration
	// ConfirmURL is the base URL the confirmation token is appended to.
	ConfirmURL string
}

// DefaultServiceConfig returns the default configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		RegenerateBelow: time.Hour,
		ConfirmURL:      "http://localhost:8888/api/v1/auth/confirm/",
	}
}

// ConfirmationEmail is the data passed to the confirmation email templates.
type ConfirmationEmail struct {
	Username string
	URL      string
	Token    krypto.Token
}

// Service is the type that provides the main rules for
// authentication.
//
// Flows that read a session's lifetime and then replace the session are not
// atomic across cache calls; the SessionStore guards the replacement itself.
type Service struct {
	users    Store
	sessions SessionStore
	hasher   *Hasher
	emailer  Emailer
	cfg      ServiceConfig

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(users Store, sessions SessionStore, hasher *Hasher, emailer Emailer, cfg ServiceConfig) (*Service, error) {
	if _, err := url.Parse(cfg.ConfirmURL); err != nil || cfg.ConfirmURL == "" {
		return nil, fmt.Errorf("invalid confirm url %q", cfg.ConfirmURL)
	}

	if cfg.RegenerateBelow <= 0 {
		return nil, errors.New("regenerate threshold must be positive")
	}

	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		emailer:  emailer,
		cfg:      cfg,
		NowFunc:  time.Now,
	}, nil
}

// Register creates a new, inactive account and emails a confirmation link to it.
// If the email address is already registered, ErrDuplicateUser is returned.
func (s *Service) Register(ctx context.Context, r Registration) error {
	_, err := s.findUserByEmail(ctx, r.Email)
	switch {
	case err == nil:
		return ErrDuplicateUser
	case !errors.Is(err, ErrUnknownAccount):
		return err
	}

	pwdHash, err := s.hasher.Hash(r.Password)
	if err != nil {
		return err
	}

	now := s.NowFunc()
	user := User{
		ID:           uuid.New(),
		Username:     r.Username,
		Email:        r.Email,
		Phone:        r.Phone,
		PasswordHash: pwdHash,
		IsActive:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.users.CreateUser(ctx, &user)
	if err != nil {
		// Another registration for the same address won the race.
		if errors.Is(err, errorz.ErrConstraintViolated) {
			return ErrDuplicateUser
		}
		return errorz.Dependency(depDatabase, err)
	}

	token, err := s.replaceSession(ctx, user.ID.String())
	if err != nil {
		return err
	}

	return s.sendConfirmation(ctx, TemplateConfirmAccount, user, token)
}

// Login checks the credentials and returns a session token.
//
// An existing session is reused unless its remaining lifetime dropped below
// RegenerateBelow, in which case it is replaced by a new one.
func (s *Service) Login(ctx context.Context, c Credentials) (krypto.Token, error) {
	user, err := s.findUserByEmail(ctx, c.Email)
	if err != nil {
		return "", err
	}

	if !s.hasher.Verify(user.PasswordHash, c.Password) {
		return "", ErrInvalidCredentials
	}

	identity := user.ID.String()

	token, err := s.sessions.Lookup(ctx, identity)
	if err != nil {
		return "", errorz.Dependency(depCache, err)
	}

	if token.IsZero() {
		token, err = s.sessions.Issue(ctx, identity)
		return token, errorz.Dependency(depCache, err)
	}

	ttl, err := s.sessions.RemainingTTL(ctx, identity)
	if err != nil {
		return "", errorz.Dependency(depCache, err)
	}

	if ttl < s.cfg.RegenerateBelow {
		token, err = s.sessions.Reissue(ctx, identity, token)
		return token, errorz.Dependency(depCache, err)
	}

	return token, nil
}

// ResendConfirmation emails a fresh confirmation link.
//
// While the current session still has more than RegenerateBelow to live,
// the request is refused with ErrDuplicateSend.
func (s *Service) ResendConfirmation(ctx context.Context, r Resend) error {
	user, err := s.findUserByEmail(ctx, r.Email)
	if err != nil {
		return err
	}

	identity := user.ID.String()

	token, err := s.sessions.Lookup(ctx, identity)
	if err != nil {
		return errorz.Dependency(depCache, err)
	}

	if token.IsZero() {
		token, err = s.sessions.Issue(ctx, identity)
	} else {
		var ttl time.Duration
		ttl, err = s.sessions.RemainingTTL(ctx, identity)
		if err != nil {
			return errorz.Dependency(depCache, err)
		}

		if ttl > s.cfg.RegenerateBelow {
			return ErrDuplicateSend
		}

		token, err = s.sessions.Reissue(ctx, identity, token)
	}
	if err != nil {
		return errorz.Dependency(depCache, err)
	}

	tmpl := TemplateConfirmAccount
	if r.Forget {
		tmpl = TemplateResetPassword
	}

	return s.sendConfirmation(ctx, tmpl, user, token)
}

// Confirm activates the account the token belongs to. The token is consumed
// and a fresh session token is returned in its place. Any other session the
// account still has is replaced by the fresh one.
func (s *Service) Confirm(ctx context.Context, token krypto.Token) (krypto.Token, error) {
	identity, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return "", errorz.Dependency(depCache, err)
	}

	if identity == "" {
		return "", ErrInvalidToken
	}

	id, err := uuid.Parse(identity)
	if err != nil {
		return "", ErrInvalidToken
	}

	err = s.users.UpdateUser(ctx, id, UserUpdate{
		IsActive:  ptr(true),
		UpdatedAt: s.NowFunc(),
	})
	if err != nil {
		return "", s.mapUpdateErr(err)
	}

	err = s.sessions.Invalidate(ctx, identity, token)
	if err != nil {
		return "", errorz.Dependency(depCache, err)
	}

	next, err := s.sessions.Reissue(ctx, identity, "")
	if err != nil {
		return "", errorz.Dependency(depCache, err)
	}

	return next, nil
}

// ResetPassword replaces the password of the user with the given identity.
// The identity is expected to come from a resolved session token.
func (s *Service) ResetPassword(ctx context.Context, identity string, pwd Password) error {
	id, err := uuid.Parse(identity)
	if err != nil {
		return ErrInvalidToken
	}

	pwdHash, err := s.hasher.Hash(pwd)
	if err != nil {
		return err
	}

	err = s.users.UpdateUser(ctx, id, UserUpdate{
		PasswordHash: &pwdHash,
		UpdatedAt:    s.NowFunc(),
	})
	if err != nil {
		return s.mapUpdateErr(err)
	}

	return nil
}

// ListUsers returns a page of users, optionally filtered by username.
// Page numbers start at 1.
func (s *Service) ListUsers(ctx context.Context, q UserQuery) ([]User, error) {
	var invalid errorz.InvalidInput

	if q.PageNum == 0 {
		q.PageNum = 1
	}
	if q.PageNum < 0 {
		invalid = append(invalid, errorz.Keyed{Key: "page_num", Err: errors.New("must be at least 1")})
	}

	if q.PageSize == 0 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize < 0 || q.PageSize > maxPageSize {
		invalid = append(invalid, errorz.Keyed{Key: "page_size", Err: fmt.Errorf("must be between 1 and %d", maxPageSize)})
	}

	if len(invalid) > 0 {
		return nil, invalid
	}

	users, err := s.users.FindUsers(ctx, &UserFilter{
		Username: strings.TrimSpace(q.Username),
		IsActive: q.IsActive,
		Limit:    q.PageSize,
		Offset:   (q.PageNum - 1) * q.PageSize,
	})
	if err != nil {
		return nil, errorz.Dependency(depDatabase, err)
	}

	return users, nil
}

// replaceSession issues a session for identity, invalidating any session
// it already had so no stale token keeps pointing at it.
func (s *Service) replaceSession(ctx context.Context, identity string) (krypto.Token, error) {
	old, err := s.sessions.Lookup(ctx, identity)
	if err != nil {
		return "", errorz.Dependency(depCache, err)
	}

	token, err := s.sessions.Reissue(ctx, identity, old)
	if err != nil {
		return "", errorz.Dependency(depCache, err)
	}

	return token, nil
}

func (s *Service) sendConfirmation(ctx context.Context, tmpl string, user User, token krypto.Token) error {
	err := s.emailer.Send(ctx, tmpl, user.Email, ConfirmationEmail{
		Username: user.Username,
		URL:      s.cfg.ConfirmURL + url.PathEscape(string(token)),
		Token:    token,
	})
	if err != nil {
		return errorz.Dependency(depEmail, err)
	}

	return nil
}

func (s *Service) findUserByEmail(ctx context.Context, addr email.Address) (User, error) {
	users, err := s.users.FindUsers(ctx, &UserFilter{
		Emails: []email.Address{addr},
	})
	if err != nil {
		return User{}, errorz.Dependency(depDatabase, err)
	}

	if len(users) != 1 {
		return User{}, ErrUnknownAccount
	}

	return users[0], nil
}

func (s *Service) mapUpdateErr(err error) error {
	if errors.Is(err, errorz.ErrNotFound) {
		return ErrUnknownAccount
	}
	return errorz.Dependency(depDatabase, err)
}

func ptr[T any](v T) *T {
	return &v
}
