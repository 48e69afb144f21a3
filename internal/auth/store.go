package auth

import (
	"context"
	"time"

	"selco.dev/staffauth/internal/notify"
)

// AccountStore is the durable record of accounts. Save must report
// ErrAlreadyExists when the unique email constraint rejects the write.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Save(ctx context.Context, acc *Account) error
}

// RevocationStore is a key/marker map with per-entry expiry.
type RevocationStore interface {
	Set(ctx context.Context, key, marker string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	DeleteAll(ctx context.Context, prefix string) (int64, error)
	Count(ctx context.Context, prefix string) (int64, error)
}

// AuditStore appends immutable entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AccessLogEntry) error
}

// Notifier hands events to the broker. Implementations should only enqueue.
type Notifier interface {
	AccountCreated(ctx context.Context, evt notify.AccountCreated) error
	SendEmail(ctx context.Context, email notify.Email) error
}
