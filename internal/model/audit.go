package model

import "time"

// AuditAction is the kind of mutation an audit entry records.
type AuditAction string

// Audit actions.
const (
	AuditCreate AuditAction = "CREATE"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
)

// Logical table names, used by backends and the audit log.
const (
	TableItems       = "items"
	TableCommitments = "commitments"
	TableAttributes  = "attributes"
	TableAudit       = "audit_log"
)

// AuditEntry is an immutable record of one change to an item or commitment.
type AuditEntry struct {
	ID        int64             `json:"id"`
	Action    AuditAction       `json:"action"`
	Table     string            `json:"table"`
	EntityID  string            `json:"entity_id"`
	Actor     string            `json:"actor"`
	Timestamp time.Time         `json:"timestamp"`
	Before    map[string]string `json:"before,omitempty"`
	After     map[string]string `json:"after,omitempty"`
}
