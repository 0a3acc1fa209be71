package web

import (
	"errors"
	"net/http"

	"github.com/lomect/accountd/internal/auth"
	"github.com/lomect/accountd/internal/errorz"
)

// errorMessages are the messages shown to clients for known errors.
// Anything else is reported as a system error.
var errorMessages = []struct {
	err error
	msg string
}{
	{auth.ErrDuplicateUser, "account already registered"},
	{auth.ErrDuplicateSend, "confirmation email was sent recently"},
	{auth.ErrUnknownAccount, "account does not exist"},
	{auth.ErrInvalidCredentials, "invalid email or password"},
	{auth.ErrInvalidToken, "invalid or expired token"},
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var invalidInput errorz.InvalidInput
	if errors.As(err, &invalidInput) {
		s.writeJSON(w, r, http.StatusBadRequest, envelope{
			Code: CodeBadRequest,
			Msg:  "invalid input",
			Data: fieldErrors(invalidInput),
		})
		return
	}

	var dErr errorz.DependencyError
	if !errors.As(err, &dErr) {
		for _, m := range errorMessages {
			if errors.Is(err, m.err) {
				status, code := kindStatus(err)
				s.writeJSON(w, r, status, envelope{Code: code, Msg: m.msg})
				return
			}
		}

		if status, code := kindStatus(err); status != http.StatusInternalServerError {
			s.writeJSON(w, r, status, envelope{Code: code, Msg: http.StatusText(status)})
			return
		}
	}

	s.deps.Logger.Error("internal server error", "method", r.Method, "path", logPath(r), "error", err)
	s.writeJSON(w, r, http.StatusInternalServerError, envelope{
		Code: CodeSystemError,
		Msg:  "system error",
	})
}

// kindStatus maps the errorz kind of err to a HTTP status and envelope code.
func kindStatus(err error) (int, int) {
	switch {
	case errors.Is(err, errorz.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, errorz.ErrNotFound):
		return http.StatusNotFound, CodeBadRequest
	case errors.Is(err, errorz.ErrConflict):
		return http.StatusConflict, CodeBadRequest
	default:
		return http.StatusInternalServerError, CodeSystemError
	}
}

// fieldErrors lists the messages of invalid input per field. Errors that
// don't belong to a field are listed under "_".
func fieldErrors(invalid errorz.InvalidInput) map[string]string {
	out := make(map[string]string, len(invalid))
	for _, err := range invalid {
		key, msg := "_", err.Error()

		var keyed errorz.Keyed
		if errors.As(err, &keyed) {
			key, msg = keyed.Key, keyed.Err.Error()
		}

		if prev, ok := out[key]; ok {
			msg = prev + "; " + msg
		}
		out[key] = msg
	}
	return out
}
