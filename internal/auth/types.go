package auth

import "time"

// Class is the flat user class carried in access tokens.
type Class string

const (
	ClassEmployee Class = "EMPLOYEE"
	ClassAdmin    Class = "ADMIN"
)

// Status is the lifecycle state of an account. Only active accounts may log in.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusBlocked  Status = "BLOCKED"
)

// Profile holds the employee data collected at registration.
type Profile struct {
	Name       string
	Department string
	JobTitle   string
	NationalID string
}

// Account is the durable credential record of an employee.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Class        Class
	Status       Status
	Profile      Profile
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the account may authenticate.
func (a *Account) Active() bool {
	return a != nil && a.Status == StatusActive
}

// DisplayName returns the profile name, falling back to the email.
func (a *Account) DisplayName() string {
	if a.Profile.Name != "" {
		return a.Profile.Name
	}
	return a.Email
}

// Audit actions.
const (
	ActionLogin    = "login"
	ActionLogout   = "logout"
	ActionValidate = "validate"
)

// AccessLogEntry is an append-only record of an access attempt.
type AccessLogEntry struct {
	ID         string
	ActorID    string // empty when the caller could not be identified
	Email      string
	Action     string
	Success    bool
	Reason     Reason
	IP         string
	UserAgent  string
	OccurredAt time.Time
}

// Caller carries network metadata of the inbound request for auditing.
type Caller struct {
	IP        string
	UserAgent string
}

// Principal is the authenticated identity derived from a validated access token.
type Principal struct {
	AccountID string
	Email     string
	Class     Class
	ExpiresAt time.Time
}
