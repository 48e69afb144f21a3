package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrPolicyRejected is matched by every expected, user-facing rejection.
	ErrPolicyRejected = errors.New("auth: rejected by policy")
	ErrAuthFailed     = errors.New("auth: authentication failed")
	// ErrDependency marks store or signer failures; callers see a generic internal error.
	ErrDependency = errors.New("auth: dependency failure")
	// ErrNotification is logged by the service and never returned to callers.
	ErrNotification = errors.New("auth: notification failed")
)

var (
	ErrDomainNotAllowed   error = policyError("email domain not allowed")
	ErrAlreadyExists      error = policyError("already exists")
	ErrAccountInactive    error = policyError("account inactive")
	ErrAlreadyInvalidated error = policyError("token already invalidated")
)

type policyError string

func (e policyError) Error() string { return "auth: " + string(e) }

func (e policyError) Is(target error) bool { return target == ErrPolicyRejected }
