package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditSessionCreated     AuditEvent = "session_created"
	AuditSessionRevoked     AuditEvent = "session_revoked"
	AuditSessionRejected    AuditEvent = "session_rejected"
	AuditBridgePaired       AuditEvent = "bridge_paired"
	AuditBridgePairFailed   AuditEvent = "bridge_pair_failed"
	AuditHiveLoginSuccess   AuditEvent = "hive_login_success"
	AuditHiveLoginFailure   AuditEvent = "hive_login_failure"
	AuditHiveLoginThrottled AuditEvent = "hive_login_throttled"
	AuditHive2FASuccess     AuditEvent = "hive_2fa_success"
	AuditHive2FAFailure     AuditEvent = "hive_2fa_failure"
	AuditHiveTokenRefreshed AuditEvent = "hive_token_refreshed"
	AuditHiveLogout         AuditEvent = "hive_logout"
	AuditCredentialsStored  AuditEvent = "credentials_stored"
	AuditCredentialsCleared AuditEvent = "credentials_cleared"
)

// auditLogger wraps slog.Logger for structured security audit logging. When
// a persistent store is attached, every event is also appended there so it
// survives restarts.
type auditLogger struct {
	logger *slog.Logger
	store  *AuditStore
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry. Attrs must never contain raw
// credential material — usernames are fine, passwords and tokens are not.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)

	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	if al.store != nil {
		detail := ""
		for _, a := range attrs {
			if a.Key == "reason" || a.Key == "username" {
				detail = a.Value.String()
				break
			}
		}
		// Persistence is best effort; the slog line above is the source
		// of truth when the disk write fails.
		_ = al.store.append(event, detail, r.RemoteAddr)
	}
}

// logFailure logs a failed authentication attempt.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
