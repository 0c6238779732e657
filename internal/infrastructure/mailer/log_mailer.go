// Package mailer holds ports.Mailer implementations.
package mailer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
)

// LogMailer writes outgoing mail to the structured log instead of sending it.
// Links carry live one-time tokens, so they are only logged at debug level.
type LogMailer struct {
	log zerolog.Logger
}

var _ ports.Mailer = (*LogMailer)(nil)

func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log.With().Str("component", "mailer").Logger()}
}

func (m *LogMailer) SendPasswordReset(_ context.Context, to, link string) error {
	m.log.Info().Str("to", to).Str("template", "password_reset").Msg("mail queued")
	m.log.Debug().Str("to", to).Str("link", link).Msg("password reset link")
	return nil
}

func (m *LogMailer) SendInvitation(_ context.Context, to, link string, role domain.Role) error {
	m.log.Info().Str("to", to).Str("template", "invitation").Str("role", string(role)).Msg("mail queued")
	m.log.Debug().Str("to", to).Str("link", link).Msg("invitation link")
	return nil
}
