// Package logger provides a request-scoped structured logger carrying
// (tenant_id, user_id, query_id), replacing any module-level mutable logger.
// Grounded on the teacher's internal/logger.CloneContext usage seen across
// internal/application/service/chat_pipline and internal/handler.
package logger

import (
	"context"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

// Fields is the set of identifiers every log line in a request's lifetime
// should carry.
type Fields struct {
	TenantID string
	UserID   string
	QueryID  string
	SessionID string
}

var base = logrus.New()

func init() {
	base.SetFormatter(&logrus.JSONFormatter{})
}

// WithFields returns a context carrying a logrus.Entry pre-populated with
// the given request-scoped fields, replacing any entry already attached.
func WithFields(ctx context.Context, f Fields) context.Context {
	entry := base.WithFields(logrus.Fields{
		"tenant_id":  f.TenantID,
		"user_id":    f.UserID,
		"query_id":   f.QueryID,
		"session_id": f.SessionID,
	})
	return context.WithValue(ctx, ctxKey{}, entry)
}

// CloneContext returns ctx unchanged if it already carries a logger entry,
// otherwise attaches a bare entry. Mirrors the teacher's defensive pattern of
// calling CloneContext at the top of every handler before logging.
func CloneContext(ctx context.Context) context.Context {
	if _, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, logrus.NewEntry(base))
}

func entry(ctx context.Context) *logrus.Entry {
	if e, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
		return e
	}
	return logrus.NewEntry(base)
}

func Info(ctx context.Context, msg string, fields map[string]interface{}) {
	entry(ctx).WithFields(fields).Info(msg)
}

func Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	entry(ctx).WithFields(fields).Warn(msg)
}

func Error(ctx context.Context, msg string, fields map[string]interface{}) {
	entry(ctx).WithFields(fields).Error(msg)
}

func Errorf(ctx context.Context, format string, args ...interface{}) {
	entry(ctx).Errorf(format, args...)
}

func Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	entry(ctx).WithFields(fields).Debug(msg)
}
