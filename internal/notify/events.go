package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types published to the broker.
const (
	EventAccountCreated = "account.created"
	EventEmailToSend    = "email.send"
	EventConnectivity   = "connectivity.probe"
)

// Email kinds understood by the mail service.
const (
	EmailRegistration = "REGISTRATION"
	EmailLoginSuccess = "LOGIN_SUCCESS"
	EmailLoginFailure = "LOGIN_FAILURE"
)

// Template ids understood by the mail service.
const (
	TemplateRegistration = "cadastro-funcionario"
	TemplateLoginSuccess = "login-sucesso"
	TemplateLoginFailure = "login-falha"
)

// AccountCreated announces a newly registered employee.
type AccountCreated struct {
	AccountID         string    `json:"accountId"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	Department        string    `json:"department"`
	Role              string    `json:"role"`
	Class             string    `json:"class"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	TemporaryPassword string    `json:"temporaryPassword"`
}

// Email asks the mail service to deliver a message. Fields after SentAt are
// template inputs and depend on TemplateID.
type Email struct {
	Recipient         string    `json:"recipient"`
	Subject           string    `json:"subject"`
	Body              string    `json:"body"`
	EmailType         string    `json:"emailType"`
	TemplateID        string    `json:"templateId"`
	SentAt            time.Time `json:"sentAt"`
	UserName          string    `json:"userName,omitempty"`
	TemporaryPassword string    `json:"temporaryPassword,omitempty"`
	ResetLink         string    `json:"resetLink,omitempty"`
}

// Envelope is the common header of every published message.
type Envelope struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	EventVersion int       `json:"event_version"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}

// Message is the JSON document written to a topic.
type Message struct {
	Envelope
	Payload any `json:"payload"`
}

// NewMessage wraps payload with a fresh envelope.
func NewMessage(eventType string, payload any, requestID string) (Message, error) {
	if eventType == "" {
		return Message{}, fmt.Errorf("event_type is required")
	}
	return Message{
		Envelope: Envelope{
			EventID:      uuid.NewString(),
			EventType:    eventType,
			EventVersion: 1,
			Timestamp:    time.Now().UTC(),
			RequestID:    requestID,
		},
		Payload: payload,
	}, nil
}
