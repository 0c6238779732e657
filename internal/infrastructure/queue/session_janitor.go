package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const defaultPurgeInterval = 10 * time.Minute

// SessionPurger deletes refresh sessions past their expiry.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// SessionJanitor periodically removes expired refresh sessions.
type SessionJanitor struct {
	purger   SessionPurger
	interval time.Duration
	log      zerolog.Logger
	done     chan struct{}
}

func NewSessionJanitor(purger SessionPurger, interval time.Duration, log zerolog.Logger) *SessionJanitor {
	if interval <= 0 {
		interval = defaultPurgeInterval
	}
	return &SessionJanitor{purger: purger, interval: interval, log: log, done: make(chan struct{})}
}

// Start runs the purge loop until ctx is cancelled.
func (j *SessionJanitor) Start(ctx context.Context) {
	go j.run(ctx)
}

// Wait blocks until the loop started by Start has exited.
func (j *SessionJanitor) Wait() {
	<-j.done
}

func (j *SessionJanitor) run(ctx context.Context) {
	defer close(j.done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := j.purger.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					j.log.Error().Err(err).Msg("purge expired sessions failed")
				}
				continue
			}
			if n > 0 {
				j.log.Info().Int64("deleted", n).Msg("expired sessions purged")
			}
		}
	}
}
