package web

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lomect/accountd/internal/auth"
	"github.com/lomect/accountd/internal/email"
	"github.com/lomect/accountd/internal/errorz"
	"github.com/lomect/accountd/internal/krypto"
)

const (
	minUsernameLen = 4
	maxUsernameLen = 64
	maxPhoneLen    = 32
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

func parseRegistration(req registerRequest) (auth.Registration, error) {
	var invalid errorz.InvalidInput

	reg := auth.Registration{
		Username: parseField(&invalid, "username", req.Username, parseUsername),
		Email:    parseField(&invalid, "email", req.Email, email.ParseAddress),
		Phone:    parseField(&invalid, "phone", req.Phone, parsePhone),
	}

	pwd, err := auth.ParseNewPassword(req.Password, req.Confirm)
	switch {
	case errors.Is(err, auth.ErrPasswordMismatch):
		invalid = append(invalid, errorz.Keyed{Key: "confirm", Err: err})
	case err != nil:
		invalid = append(invalid, errorz.Keyed{Key: "password", Err: err})
	}
	reg.Password = pwd

	if len(invalid) > 0 {
		return auth.Registration{}, invalid
	}

	return reg, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func parseCredentials(req loginRequest) (auth.Credentials, error) {
	var invalid errorz.InvalidInput

	c := auth.Credentials{
		Email:    parseField(&invalid, "email", req.Email, email.ParseAddress),
		Password: parseField(&invalid, "password", req.Password, auth.ParseLoginPassword),
	}

	if len(invalid) > 0 {
		return auth.Credentials{}, invalid
	}

	return c, nil
}

type resendRequest struct {
	Email  string `json:"email"`
	Forget bool   `json:"forget"`
}

func parseResend(req resendRequest) (auth.Resend, error) {
	var invalid errorz.InvalidInput

	r := auth.Resend{
		Email:  parseField(&invalid, "email", req.Email, email.ParseAddress),
		Forget: req.Forget,
	}

	if len(invalid) > 0 {
		return auth.Resend{}, invalid
	}

	return r, nil
}

type tokenRequest struct {
	Token string `json:"token"`
}

func parseTokenRequest(req tokenRequest) (krypto.Token, error) {
	var invalid errorz.InvalidInput

	token := parseField(&invalid, "token", req.Token, krypto.ParseToken)
	if len(invalid) > 0 {
		return "", invalid
	}

	return token, nil
}

// tokenResponse is returned by the endpoints that hand out a session token.
type tokenResponse struct {
	Token krypto.Token `json:"token"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

func parseResetPassword(req resetPasswordRequest) (auth.Password, error) {
	pwd, err := auth.ParseNewPassword(req.Password, req.Confirm)
	switch {
	case errors.Is(err, auth.ErrPasswordMismatch):
		return auth.Password{}, errorz.InvalidInput{errorz.Keyed{Key: "confirm", Err: err}}
	case err != nil:
		return auth.Password{}, errorz.InvalidInput{errorz.Keyed{Key: "password", Err: err}}
	}

	return pwd, nil
}

// usersQuery is decoded from the query string of the user listing.
type usersQuery struct {
	Name     string `schema:"name"`
	Active   *bool  `schema:"active"`
	PageNum  int    `schema:"page_num"`
	PageSize int    `schema:"page_size"`
}

func (q usersQuery) userQuery() auth.UserQuery {
	return auth.UserQuery{
		Username: q.Name,
		IsActive: q.Active,
		PageNum:  q.PageNum,
		PageSize: q.PageSize,
	}
}

// userResponse is the public view of a user. It leaves out the password hash.
type userResponse struct {
	ID        uuid.UUID     `json:"id"`
	Username  string        `json:"username"`
	Email     email.Address `json:"email"`
	Phone     string        `json:"phone"`
	IsActive  bool          `json:"is_active"`
	CreatedAt time.Time     `json:"created_at"`
}

func usersResponse(users []auth.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse{
			ID:        u.ID,
			Username:  u.Username,
			Email:     u.Email,
			Phone:     u.Phone,
			IsActive:  u.IsActive,
			CreatedAt: u.CreatedAt,
		})
	}
	return out
}

func parseUsername(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	if n < minUsernameLen || n > maxUsernameLen {
		return "", fmt.Errorf("must be between %d and %d characters", minUsernameLen, maxUsernameLen)
	}
	return name, nil
}

func parsePhone(raw string) (string, error) {
	phone := strings.TrimSpace(raw)
	if phone == "" || len(phone) > maxPhoneLen {
		return "", fmt.Errorf("must be between 1 and %d characters", maxPhoneLen)
	}

	for i, r := range phone {
		if r == '+' && i == 0 {
			continue
		}
		if (r < '0' || r > '9') && r != ' ' && r != '-' {
			return "", errors.New("may only contain digits, spaces and dashes")
		}
	}

	return phone, nil
}
