package mongo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/internal/core/ports"
)

const collectionAuditLog = "audit_log"

// AuditRepository mirrors audit entries into a MongoDB collection. The entry
// id is the document _id, so a replayed entry is stored once.
type AuditRepository struct {
	col *mongo.Collection
}

var _ ports.AuditSink = (*AuditRepository)(nil)

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return newAuditRepository(db.Collection(collectionAuditLog))
}

func newAuditRepository(col *mongo.Collection) *AuditRepository {
	return &AuditRepository{col: col}
}

type mongoAuditEntry struct {
	ID        string    `bson:"_id"`
	ActorID   string    `bson:"actor_id"`
	ActorRole string    `bson:"actor_role"`
	TenantID  string    `bson:"tenant_id,omitempty"`
	Action    string    `bson:"action"`
	Entity    string    `bson:"entity"`
	EntityID  string    `bson:"entity_id,omitempty"`
	Changes   bson.M    `bson:"changes,omitempty"`
	IP        string    `bson:"ip,omitempty"`
	UserAgent string    `bson:"user_agent,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

// Append inserts the entry. A duplicate _id means the entry is already
// mirrored and is not an error.
func (r *AuditRepository) Append(ctx context.Context, e *domain.AuditEntry) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := mongoAuditEntry{
		ID:        e.ID,
		ActorID:   e.ActorID,
		ActorRole: string(e.ActorRole),
		TenantID:  e.TenantID,
		Action:    e.Action,
		Entity:    e.Entity,
		EntityID:  e.EntityID,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		CreatedAt: e.Timestamp.UTC(),
	}
	if len(e.Changes) > 0 {
		if err := json.Unmarshal(e.Changes, &doc.Changes); err != nil {
			return fmt.Errorf("decode audit changes: %w", err)
		}
	}

	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// EnsureIndexes creates the tenant and entity indexes on the audit collection.
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "entity", Value: 1}, {Key: "entity_id", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
