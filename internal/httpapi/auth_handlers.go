package httpapi

import (
	"errors"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"selco.dev/staffauth/internal/audit"
	"selco.dev/staffauth/internal/auth"
)

const healthMessage = "staffauth is running"

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.normalize()
	if err := req.Validate(); err != nil {
		writeValidationError(w, r, err)
		return
	}

	id, err := a.svc.Register(r.Context(), req.registration())
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrDomainNotAllowed):
		writeJSON(w, http.StatusConflict, registerResponse{Message: "email domain is not allowed"})
		return
	case errors.Is(err, auth.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, registerResponse{Message: "email is already registered"})
		return
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid registration")
		return
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.account.registered",
		zap.String("account_id", id),
		zap.String("email", req.Email),
	)
	writeJSON(w, http.StatusCreated, registerResponse{
		Success:   true,
		Message:   "employee registered; temporary password sent by email",
		AccountID: id,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, r, err)
		return
	}

	res, err := a.svc.Login(r.Context(), req.Email, req.Password, callerFrom(r))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, "email and password are required")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	switch res.Outcome {
	case auth.LoginSucceeded:
		writeJSON(w, http.StatusOK, loginResponse{
			Success:      true,
			Message:      "login succeeded",
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			UserClass:    string(res.Class),
			ExpiresIn:    res.ExpiresIn,
		})
	case auth.LoginInactive:
		writeJSON(w, http.StatusForbidden, loginResponse{Message: "account is not active"})
	default:
		// Unknown email and wrong password look the same to the caller.
		writeJSON(w, http.StatusUnauthorized, loginResponse{Message: "invalid email or password"})
	}
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, r, err)
		return
	}

	now := time.Now().UTC()
	err := a.svc.Logout(r.Context(), req.Token, callerFrom(r))
	switch {
	case err == nil:
		_ = audit.LogEvent(r.Context(), "auth.token.revoked")
		writeJSON(w, http.StatusOK, logoutResponse{Success: true, Message: "logout succeeded", Timestamp: now})
	case errors.Is(err, auth.ErrAlreadyInvalidated):
		writeJSON(w, http.StatusBadRequest, logoutResponse{Message: "token already invalidated", Timestamp: now})
	case errors.Is(err, auth.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, logoutResponse{Message: "invalid token", Timestamp: now})
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, validationResponse{Message: err.Error(), Timestamp: now})
		return
	}

	res, err := a.svc.Validate(r.Context(), token, callerFrom(r))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if !res.Valid {
		writeJSON(w, http.StatusUnauthorized, validationResponse{Message: validationMessage(res.Reason), Timestamp: now})
		return
	}
	expires := res.ExpiresAt.UTC()
	writeJSON(w, http.StatusOK, validationResponse{
		Valid:     true,
		AccountID: res.AccountID,
		Name:      res.Name,
		Email:     res.Email,
		UserClass: string(res.Class),
		ExpiresAt: &expires,
		Message:   "token is valid",
		Timestamp: now,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		AccountID: p.AccountID,
		Email:     p.Email,
		UserClass: string(p.Class),
		ExpiresAt: p.ExpiresAt.UTC(),
	})
}

func (a *API) handleAuthHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(healthMessage))
}

func validationMessage(reason auth.Reason) string {
	switch reason {
	case auth.ReasonRevoked:
		return "token has been revoked"
	case auth.ReasonExpired:
		return "token has expired"
	case auth.ReasonAccountNotFound:
		return "account not found"
	case auth.ReasonAccountNotActive:
		return "account is not active"
	case auth.ReasonSubjectMismatch:
		return "token is not valid for this account"
	default:
		return "invalid token"
	}
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":   "invalid request",
		"details": verrs,
	})
}

func callerFrom(r *http.Request) auth.Caller {
	return auth.Caller{IP: clientIP(r), UserAgent: r.UserAgent()}
}
