package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit event categories
const (
	AuditCategoryThreat            = "threat"
	AuditCategoryAccountLocked     = "account_locked"
	AuditCategoryAccountUnlocked   = "account_unlocked"
	AuditCategorySessionTerminated = "session_terminated"
	AuditCategoryRateLimitRejected = "rate_limit_rejected"
	AuditCategoryLoginFailed       = "login_failed"
	AuditCategoryLoginSucceeded    = "login_succeeded"
	AuditCategoryCodeIssued        = "activation_code_issued"
	AuditCategoryCodeInvalidated   = "activation_code_invalidated"
	AuditCategoryActivationFailed  = "activation_failed"
	AuditCategoryAccountActivated  = "account_activated"
	AuditCategoryDevURLBlocked     = "dev_url_blocked"
)

// AuditEvent is the structured record forwarded to the audit sink:
// {timestamp, category, identity, detail}.
type AuditEvent struct {
	ID        uuid.UUID   `db:"id" json:"id"`
	Timestamp time.Time   `db:"occurred_at" json:"timestamp"`
	Category  string      `db:"category" json:"category"`
	Identity  string      `db:"identity" json:"identity"`
	Detail    AuditDetail `db:"detail" json:"detail"`
}

// AuditDetail holds additional context for audit events
type AuditDetail map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (d *AuditDetail) Scan(value interface{}) error {
	if value == nil {
		*d = make(AuditDetail)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	*d = AuditDetail(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (d AuditDetail) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(d))
}

// NewThreatAuditEvent converts a detected threat into its audit record.
func NewThreatAuditEvent(te ThreatEvent) AuditEvent {
	return AuditEvent{
		ID:        uuid.New(),
		Timestamp: te.Timestamp,
		Category:  AuditCategoryThreat,
		Identity:  te.SourceIdentity,
		Detail: AuditDetail{
			"threat_category": string(te.Category),
			"matched_pattern": te.MatchedPattern,
			"request_target":  te.RequestTarget,
		},
	}
}
