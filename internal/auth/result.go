package auth

import "time"

// Reason is the stable category recorded in audit entries and returned to callers.
type Reason string

const (
	ReasonSuccess        Reason = "success"
	ReasonNotFound       Reason = "not found"
	ReasonInactive       Reason = "inactive"
	ReasonBadCredentials Reason = "bad credentials"
	ReasonError          Reason = "error"
	ReasonLogout         Reason = "logout"
	ReasonAlreadyRevoked Reason = "already invalidated"
	ReasonInvalidToken   Reason = "invalid token"

	ReasonRevoked          Reason = "revoked"
	ReasonExpired          Reason = "expired"
	ReasonMalformed        Reason = "malformed"
	ReasonAccountNotFound  Reason = "account not found"
	ReasonSubjectMismatch  Reason = "token invalid for account"
	ReasonAccountNotActive Reason = "account not active"
)

// LoginOutcome distinguishes the caller-visible login results.
type LoginOutcome int

const (
	LoginSucceeded LoginOutcome = iota
	LoginInvalidCredentials
	LoginInactive
)

// LoginResult is returned for every handled login attempt. Reason is the
// internal audit category; callers must not expose it for InvalidCredentials.
type LoginResult struct {
	Outcome      LoginOutcome
	Reason       Reason
	AccountID    string
	AccessToken  string
	RefreshToken string
	Class        Class
	ExpiresIn    int64
}

// Succeeded reports whether tokens were issued.
func (r LoginResult) Succeeded() bool { return r.Outcome == LoginSucceeded }

// ValidationResult describes a token check. Fields other than Valid and
// Reason are only populated when Valid is true.
type ValidationResult struct {
	Valid     bool
	Reason    Reason
	AccountID string
	Name      string
	Email     string
	Class     Class
	ExpiresAt time.Time
}

// Principal converts a successful validation into the request principal.
func (r ValidationResult) Principal() Principal {
	return Principal{
		AccountID: r.AccountID,
		Email:     r.Email,
		Class:     r.Class,
		ExpiresAt: r.ExpiresAt,
	}
}

func invalid(reason Reason) ValidationResult {
	return ValidationResult{Reason: reason}
}
