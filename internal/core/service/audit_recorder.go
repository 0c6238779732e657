package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/medora/clinic-core/internal/api/metrics"
	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
	"github.com/medora/clinic-core/internal/pkg/ids"
)

const (
	DefaultAuditTimeout = 3 * time.Second
	redacted            = "[REDACTED]"
)

// AuditRecorder masks and appends audit entries. Record never fails the
// caller: a failed append goes to the outbox, and a failed push is logged
// and counted as dropped.
type AuditRecorder struct {
	sink    ports.AuditSink
	outbox  ports.AuditOutbox
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewAuditRecorder returns an AuditRecorder. outbox may be nil, in which case
// failed appends are dropped after logging.
func NewAuditRecorder(sink ports.AuditSink, outbox ports.AuditOutbox, timeout time.Duration, log zerolog.Logger) *AuditRecorder {
	if timeout <= 0 {
		timeout = DefaultAuditTimeout
	}
	return &AuditRecorder{
		sink:    sink,
		outbox:  outbox,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log,
	}
}

// Record masks in.Changes and appends the entry. The append runs detached
// from ctx cancellation but bounded by the recorder timeout.
func (r *AuditRecorder) Record(ctx context.Context, in domain.AuditInput) {
	entry, err := r.build(in)
	if err != nil {
		r.log.Error().Err(err).Str("action", in.Action).Str("entity", in.Entity).Msg("audit entry could not be built")
		metrics.AuditDroppedTotal.Inc()
		return
	}

	ctx = context.WithoutCancel(ctx)
	if err = r.append(ctx, entry); err == nil {
		return
	}

	metrics.AuditWriteFailuresTotal.WithLabelValues("primary").Inc()
	r.log.Error().Err(err).
		Str("audit_id", entry.ID).
		Str("action", entry.Action).
		Str("entity", entry.Entity).
		Str("tenant_id", entry.TenantID).
		Msg("audit write failed; queuing for replay")
	r.enqueue(ctx, entry)
}

// Replay re-appends an entry taken from the outbox. On failure the entry is
// pushed back and the append error is returned.
func (r *AuditRecorder) Replay(ctx context.Context, entry *domain.AuditEntry) error {
	if err := r.append(ctx, entry); err != nil {
		metrics.AuditWriteFailuresTotal.WithLabelValues("replay").Inc()
		r.enqueue(context.WithoutCancel(ctx), entry)
		return err
	}
	metrics.AuditReplayedTotal.Inc()
	return nil
}

func (r *AuditRecorder) append(ctx context.Context, entry *domain.AuditEntry) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.sink.Append(ctx, entry)
}

func (r *AuditRecorder) enqueue(ctx context.Context, entry *domain.AuditEntry) {
	if r.outbox == nil {
		metrics.AuditDroppedTotal.Inc()
		r.log.Error().Str("audit_id", entry.ID).Msg("audit entry dropped: no outbox configured")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.outbox.Push(ctx, entry); err != nil {
		metrics.AuditDroppedTotal.Inc()
		r.log.Error().Err(err).
			Str("audit_id", entry.ID).
			Str("action", entry.Action).
			Str("entity", entry.Entity).
			Msg("audit entry dropped: outbox push failed")
	}
}

func (r *AuditRecorder) build(in domain.AuditInput) (*domain.AuditEntry, error) {
	tenantID := in.TenantID
	if tenantID == "" {
		tenantID = in.Actor.TenantID
	}

	entry := &domain.AuditEntry{
		ID:        ids.New(),
		ActorID:   in.Actor.ID,
		ActorRole: in.Actor.Role,
		TenantID:  tenantID,
		Action:    in.Action,
		Entity:    in.Entity,
		EntityID:  in.EntityID,
		IP:        in.IP,
		UserAgent: in.UserAgent,
		Timestamp: r.now(),
	}

	if len(in.Changes) > 0 {
		raw, err := json.Marshal(MaskChanges(in.Changes))
		if err != nil {
			return nil, fmt.Errorf("marshal audit changes: %w", err)
		}
		entry.Changes = raw
	}
	return entry, nil
}

// MaskChanges returns a copy of changes with PII values masked. Nested maps
// and slices are walked; the input is not modified.
func MaskChanges(changes map[string]any) map[string]any {
	if changes == nil {
		return nil
	}
	out := make(map[string]any, len(changes))
	for k, v := range changes {
		out[k] = maskValue(k, v)
	}
	return out
}

func maskValue(key string, v any) any {
	switch classifyKey(key) {
	case piiSecret, piiRedact:
		return redacted
	case piiEmail:
		if s, ok := v.(string); ok {
			return maskEmail(s)
		}
		if v != nil {
			return redacted
		}
	case piiPhone:
		if s, ok := v.(string); ok {
			return maskPhone(s)
		}
		if v != nil {
			return redacted
		}
	}

	switch t := v.(type) {
	case map[string]any:
		return MaskChanges(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = maskValue(key, item)
		}
		return out
	}
	return v
}

type piiClass int

const (
	piiNone piiClass = iota
	piiEmail
	piiPhone
	piiRedact
	piiSecret
)

func classifyKey(key string) piiClass {
	k := strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || r == ' ' {
			return -1
		}
		return unicode.ToLower(r)
	}, key)

	switch {
	case strings.Contains(k, "password"), strings.Contains(k, "token"), strings.Contains(k, "secret"):
		return piiSecret
	case strings.Contains(k, "email"):
		return piiEmail
	case strings.Contains(k, "phone"), strings.Contains(k, "mobile"):
		return piiPhone
	case strings.Contains(k, "address"), strings.Contains(k, "birth"), k == "dob":
		return piiRedact
	}
	return piiNone
}

// maskEmail keeps the first two characters of the local part and the domain.
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return redacted
	}
	local := []rune(email[:at])
	keep := min(2, len(local))
	return string(local[:keep]) + "***" + email[at:]
}

// maskPhone keeps the last four digits.
func maskPhone(phone string) string {
	digits := make([]rune, 0, len(phone))
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return "***"
	}
	return "***" + string(digits[len(digits)-4:])
}
