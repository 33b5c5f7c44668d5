package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	db execer
}

// NewAuditLogger returns a new AuditLogger. db is usually a *pgxpool.Pool.
func NewAuditLogger(db execer) *AuditLogger {
	return &AuditLogger{db: db}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	meta := log.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err = l.db.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}

// Handle is an EventHandler that turns a domain event into an audit row.
func (l *AuditLogger) Handle(ctx context.Context, evt Event) error {
	return l.Record(ctx, AuditFromEvent(evt))
}

// AuditFromEvent maps an event onto the audit_logs shape.
func AuditFromEvent(evt Event) AuditLog {
	meta := make(map[string]any, len(evt.Data)+2)
	for k, v := range evt.Data {
		meta[k] = v
	}
	meta["event_id"] = evt.ID.String()
	if evt.CompanyID != 0 {
		meta["company_id"] = evt.CompanyID
	}
	return AuditLog{
		ActorID:  evt.ActorID,
		Action:   evt.Name,
		Entity:   evt.Entity,
		EntityID: evt.EntityID,
		Meta:     meta,
		At:       evt.OccurredAt,
	}
}
