package domain

import (
	"encoding/json"
	"time"
)

// AuditEntry is an immutable record of a successful mutation. Changes holds
// the PII-masked payload.
type AuditEntry struct {
	ID        string          `json:"id"`
	ActorID   string          `json:"actorId"`
	ActorRole Role            `json:"actorRole"`
	TenantID  string          `json:"tenantId,omitempty"`
	Action    string          `json:"action"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entityId,omitempty"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	IP        string          `json:"ip,omitempty"`
	UserAgent string          `json:"userAgent,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// AuditInput is what a caller hands to the recorder before masking.
type AuditInput struct {
	Actor Principal

	// TenantID is the tenant owning the entity. Empty means the actor's tenant.
	TenantID string

	Action    string
	Entity    string
	EntityID  string
	Changes   map[string]any
	IP        string
	UserAgent string
}

// AuditFilter selects audit entries for listing.
type AuditFilter struct {
	Entity   string
	EntityID string
	ActorID  string
	Limit    int
	Offset   int
}
