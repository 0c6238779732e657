package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medora/clinic-core/internal/api/metrics"
	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
)

const (
	defaultWorkers       = 2
	defaultPopWait       = 2 * time.Second
	defaultBackoff       = time.Second
	defaultDepthInterval = 15 * time.Second
)

// AuditReplayer re-appends an entry taken from the outbox. On failure it is
// responsible for putting the entry back.
type AuditReplayer interface {
	Replay(ctx context.Context, entry *domain.AuditEntry) error
}

// AuditDrainer runs a fixed pool of workers that pop entries from the audit
// outbox and replay them into the audit sink. A separate loop keeps the
// outbox depth gauge current.
type AuditDrainer struct {
	outbox   ports.AuditOutbox
	replayer AuditReplayer
	workers  int
	popWait  time.Duration
	backoff  time.Duration
	interval time.Duration
	log      zerolog.Logger
	wg       sync.WaitGroup
}

// NewAuditDrainer creates a drainer with numWorkers workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewAuditDrainer(outbox ports.AuditOutbox, replayer AuditReplayer, numWorkers int, log zerolog.Logger) *AuditDrainer {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	return &AuditDrainer{
		outbox:   outbox,
		replayer: replayer,
		workers:  numWorkers,
		popWait:  defaultPopWait,
		backoff:  defaultBackoff,
		interval: defaultDepthInterval,
		log:      log,
	}
}

// Start launches the workers and the depth reporter. They stop when ctx is
// cancelled; use Wait to block until they have returned.
func (d *AuditDrainer) Start(ctx context.Context) {
	d.wg.Add(d.workers + 1)
	for i := 0; i < d.workers; i++ {
		go d.runWorker(ctx, i)
	}
	go d.reportDepth(ctx)
}

// Wait blocks until every goroutine started by Start has exited.
func (d *AuditDrainer) Wait() {
	d.wg.Wait()
}

func (d *AuditDrainer) runWorker(ctx context.Context, id int) {
	defer d.wg.Done()
	for ctx.Err() == nil {
		entry, err := d.outbox.Pop(ctx, d.popWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Warn().Err(err).Int("worker_id", id).Msg("audit outbox pop failed")
			sleep(ctx, d.backoff)
			continue
		}
		if entry == nil {
			continue
		}
		if err := d.replayer.Replay(ctx, entry); err != nil {
			d.log.Warn().Err(err).
				Str("audit_id", entry.ID).
				Int("worker_id", id).
				Msg("audit replay failed")
			sleep(ctx, d.backoff)
		}
	}
}

func (d *AuditDrainer) reportDepth(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if n, err := d.outbox.Len(ctx); err == nil {
			metrics.AuditOutboxDepth.Set(float64(n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sleep waits for dur or until ctx is done.
func sleep(ctx context.Context, dur time.Duration) {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
