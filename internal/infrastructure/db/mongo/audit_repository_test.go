package mongo

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/medora/clinic-core/internal/core/domain"
)

func testEntry() *domain.AuditEntry {
	return &domain.AuditEntry{
		ID:        "01J0AUDIT",
		ActorID:   "s1",
		ActorRole: domain.RoleOwner,
		TenantID:  "t1",
		Action:    "update",
		Entity:    "staff",
		EntityID:  "s2",
		Changes:   json.RawMessage(`{"role":"admin","email":"ja***@clinic.io"}`),
		Timestamp: time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC),
	}
}

func TestAuditRepository_Append(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("inserts document", func(mt *mtest.T) {
		repo := newAuditRepository(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		if err := repo.Append(context.Background(), testEntry()); err != nil {
			t.Fatalf("Append: %v", err)
		}

		started := mt.GetStartedEvent()
		if started == nil || started.CommandName != "insert" {
			t.Fatalf("expected insert command, got %+v", started)
		}
		doc := started.Command.Lookup("documents").Array().Index(0).Value().Document()
		if id := doc.Lookup("_id").StringValue(); id != "01J0AUDIT" {
			t.Fatalf("_id = %q", id)
		}
		if role := doc.Lookup("changes", "role").StringValue(); role != "admin" {
			t.Fatalf("changes.role = %q", role)
		}
	})

	mt.Run("duplicate id is ignored", func(mt *mtest.T) {
		repo := newAuditRepository(mt.Coll)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error",
		}))

		if err := repo.Append(context.Background(), testEntry()); err != nil {
			t.Fatalf("replayed entry should not fail: %v", err)
		}
	})

	mt.Run("server error is returned", func(mt *mtest.T) {
		repo := newAuditRepository(mt.Coll)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    91,
			Message: "shutdown in progress",
			Name:    "ShutdownInProgress",
		}))

		if err := repo.Append(context.Background(), testEntry()); err == nil {
			t.Fatal("expected error")
		}
	})

	mt.Run("malformed changes", func(mt *mtest.T) {
		repo := newAuditRepository(mt.Coll)
		e := testEntry()
		e.Changes = json.RawMessage(`[1,2]`)

		if err := repo.Append(context.Background(), e); err == nil {
			t.Fatal("expected decode error for non-object changes")
		}
	})
}

func TestAuditRepository_EnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("creates indexes", func(mt *mtest.T) {
		repo := newAuditRepository(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "createdCollectionAutomatically", Value: true}))

		if err := repo.EnsureIndexes(context.Background()); err != nil {
			t.Fatalf("EnsureIndexes: %v", err)
		}
	})
}
