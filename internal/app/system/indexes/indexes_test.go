package indexes_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"github.com/dalemusser/collabhub/internal/app/system/indexes"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestEnsureAll(t *testing.T) {
	es := entitystore.NewMemory()
	if err := indexes.EnsureAll(context.Background(), es, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_Idempotent(t *testing.T) {
	es := entitystore.NewMemory()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := indexes.EnsureAll(ctx, es, zap.NewNop()); err != nil {
			t.Fatalf("EnsureAll run %d failed: %v", i+1, err)
		}
	}
}

func TestDefinitions_NamesUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, ix := range indexes.Definitions() {
		k := ix.Collection + "." + ix.Name
		if seen[k] {
			t.Errorf("duplicate index %s", k)
		}
		seen[k] = true
		if len(ix.Fields) == 0 {
			t.Errorf("index %s has no fields", k)
		}
	}
}

func TestEnsureAll_NotificationDedupeEnforced(t *testing.T) {
	es := entitystore.NewMemory()
	ctx := context.Background()
	if err := indexes.EnsureAll(ctx, es, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	n := models.Notification{ID: primitive.NewObjectID(), Type: models.NotifProjectApproved, DedupeKey: "k:a@x.com"}
	if err := es.Insert(ctx, entitystore.Notifications, n); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	n.ID = primitive.NewObjectID()
	if err := es.Insert(ctx, entitystore.Notifications, n); !errors.Is(err, entitystore.ErrConflict) {
		t.Errorf("second insert error = %v, want ErrConflict", err)
	}

	// Notifications without a dedupe key are not constrained.
	for i := 0; i < 2; i++ {
		plain := models.Notification{ID: primitive.NewObjectID(), Type: models.NotifGroupPost}
		if err := es.Insert(ctx, entitystore.Notifications, plain); err != nil {
			t.Errorf("insert without dedupe key %d: %v", i, err)
		}
	}
}

func TestEnsureAll_OneGroupPerProject(t *testing.T) {
	es := entitystore.NewMemory()
	ctx := context.Background()
	if err := indexes.EnsureAll(ctx, es, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	pid := primitive.NewObjectID()
	g1 := models.Group{ID: primitive.NewObjectID(), Name: "A", ProjectID: &pid}
	g2 := models.Group{ID: primitive.NewObjectID(), Name: "B", ProjectID: &pid}
	if err := es.Insert(ctx, entitystore.Groups, g1); err != nil {
		t.Fatalf("insert g1: %v", err)
	}
	if err := es.Insert(ctx, entitystore.Groups, g2); !errors.Is(err, entitystore.ErrConflict) {
		t.Errorf("insert g2 error = %v, want ErrConflict", err)
	}

	// Groups without a project (legacy event groups) are unconstrained.
	for i := 0; i < 2; i++ {
		if err := es.Insert(ctx, entitystore.Groups, models.Group{ID: primitive.NewObjectID(), Name: "free"}); err != nil {
			t.Errorf("insert group without project %d: %v", i, err)
		}
	}
}
