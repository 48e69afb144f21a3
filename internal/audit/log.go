// Package audit writes access-log entries to the structured log and fans them
// out to durable stores.
package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"selco.dev/staffauth/internal/auth"
	"selco.dev/staffauth/internal/obs"
)

// LogEvent writes an audit line enriched with request and principal context.
func LogEvent(ctx context.Context, event string, fields ...zap.Field) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	all := make([]zap.Field, 0, len(fields)+4)
	all = append(all, zap.String("type", "audit"), zap.String("event", event))
	if rid := obs.RequestIDFromContext(ctx); rid != "" {
		all = append(all, zap.String("request_id", rid))
	}
	if accountID, ok := auth.AccountIDFromContext(ctx); ok {
		all = append(all, zap.String("principal_id", accountID))
	}
	all = append(all, fields...)
	obs.Logger().Info("audit", all...)
	return nil
}

// LogSink records access attempts as audit log lines.
type LogSink struct{}

var _ auth.AuditStore = LogSink{}

func (LogSink) Append(ctx context.Context, entry *auth.AccessLogEntry) error {
	if entry == nil {
		return errors.New("audit entry is required")
	}
	return LogEvent(ctx, "access."+entry.Action,
		zap.String("entry_id", entry.ID),
		zap.String("actor_id", entry.ActorID),
		zap.String("email", entry.Email),
		zap.Bool("success", entry.Success),
		zap.String("reason", string(entry.Reason)),
		zap.String("ip", entry.IP),
		zap.String("user_agent", entry.UserAgent),
		zap.Time("occurred_at", entry.OccurredAt),
	)
}

// Multi appends to every store in order. All stores are attempted; the
// joined error reports those that failed.
type Multi []auth.AuditStore

var _ auth.AuditStore = Multi(nil)

func (m Multi) Append(ctx context.Context, entry *auth.AccessLogEntry) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
