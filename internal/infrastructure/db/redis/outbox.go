package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
)

// DefaultOutboxKey is the list holding audit entries awaiting replay.
const DefaultOutboxKey = "audit:outbox"

// AuditOutbox is a FIFO of audit entries backed by a Redis list.
// Entries are LPUSHed and popped from the right.
type AuditOutbox struct {
	client *redis.Client
	key    string
}

var _ ports.AuditOutbox = (*AuditOutbox)(nil)

// NewAuditOutbox wraps client. An empty key falls back to DefaultOutboxKey.
func NewAuditOutbox(client *redis.Client, key string) *AuditOutbox {
	if key == "" {
		key = DefaultOutboxKey
	}
	return &AuditOutbox{client: client, key: key}
}

func (o *AuditOutbox) Push(ctx context.Context, entry *domain.AuditEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	if err := o.client.LPush(ctx, o.key, b).Err(); err != nil {
		return fmt.Errorf("outbox push: %w", err)
	}
	return nil
}

// Pop blocks up to wait for the oldest entry. A non-positive wait does not
// block. It returns (nil, nil) when the outbox is empty.
func (o *AuditOutbox) Pop(ctx context.Context, wait time.Duration) (*domain.AuditEntry, error) {
	var (
		raw string
		err error
	)
	if wait > 0 {
		var res []string
		res, err = o.client.BRPop(ctx, wait, o.key).Result()
		if err == nil {
			// BRPOP replies with [key, value].
			raw = res[1]
		}
	} else {
		raw, err = o.client.RPop(ctx, o.key).Result()
	}
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("outbox pop: %w", err)
	}

	var entry domain.AuditEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("decode audit entry: %w", err)
	}
	return &entry, nil
}

func (o *AuditOutbox) Len(ctx context.Context) (int64, error) {
	n, err := o.client.LLen(ctx, o.key).Result()
	if err != nil {
		return 0, fmt.Errorf("outbox len: %w", err)
	}
	return n, nil
}
