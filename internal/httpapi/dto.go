package httpapi

import (
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"selco.dev/staffauth/internal/auth"
)

// nationalIDPattern accepts the punctuated ddd.ddd.ddd-dd form or 11 bare digits.
var nationalIDPattern = regexp.MustCompile(`^(\d{3}\.\d{3}\.\d{3}-\d{2}|\d{11})$`)

type registerRequest struct {
	NationalID string `json:"national_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	JobTitle   string `json:"job_title"`
}

func (r *registerRequest) normalize() {
	r.NationalID = strings.TrimSpace(r.NationalID)
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Department = strings.TrimSpace(r.Department)
	r.JobTitle = strings.TrimSpace(r.JobTitle)
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NationalID, validation.Required, validation.Match(nationalIDPattern).Error("must be ddd.ddd.ddd-dd or 11 digits")),
		validation.Field(&r.Name, validation.Required, validation.RuneLength(2, 100)),
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Department, validation.Required, validation.RuneLength(2, 50)),
		validation.Field(&r.JobTitle, validation.Required, validation.RuneLength(2, 50)),
	)
}

func (r registerRequest) registration() auth.Registration {
	return auth.Registration{
		Email: r.Email,
		Profile: auth.Profile{
			Name:       r.Name,
			Department: r.Department,
			JobTitle:   r.JobTitle,
			NationalID: r.NationalID,
		},
	}
}

type registerResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	AccountID string `json:"account_id,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Password, validation.Required),
	)
}

type loginResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	UserClass    string `json:"user_class,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

type logoutRequest struct {
	Token string `json:"token"`
}

func (r logoutRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

type logoutResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type validationResponse struct {
	Valid     bool       `json:"valid"`
	AccountID string     `json:"account_id,omitempty"`
	Name      string     `json:"name,omitempty"`
	Email     string     `json:"email,omitempty"`
	UserClass string     `json:"user_class,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

type meResponse struct {
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	UserClass string    `json:"user_class"`
	ExpiresAt time.Time `json:"expires_at"`
}
