package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/medora/clinic-core/internal/api/metrics"
	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
)

// NamedSink labels a mirror sink for logs and metrics.
type NamedSink struct {
	Name string
	Sink ports.AuditSink
}

// FanoutSink writes to a primary sink and then to best-effort mirrors. Only
// the primary result is returned; mirrors are written after the primary
// succeeded, so a replayed entry reaches each mirror once.
type FanoutSink struct {
	primary ports.AuditSink
	mirrors []NamedSink
	log     zerolog.Logger
}

func NewFanoutSink(primary ports.AuditSink, log zerolog.Logger, mirrors ...NamedSink) *FanoutSink {
	return &FanoutSink{primary: primary, mirrors: mirrors, log: log}
}

func (f *FanoutSink) Append(ctx context.Context, entry *domain.AuditEntry) error {
	if err := f.primary.Append(ctx, entry); err != nil {
		return err
	}
	for _, m := range f.mirrors {
		if err := m.Sink.Append(ctx, entry); err != nil {
			metrics.AuditWriteFailuresTotal.WithLabelValues(m.Name).Inc()
			f.log.Warn().Err(err).Str("sink", m.Name).Str("audit_id", entry.ID).Msg("audit mirror write failed")
		}
	}
	return nil
}
