package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"github.com/dalemusser/collabhub/internal/app/system/indexes"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoURIEnv names the variable that enables MongoDB-backed tests.
const MongoURIEnv = "COLLABHUB_TEST_MONGO_URI"

// SetupTestDB connects to the MongoDB named by COLLABHUB_TEST_MONGO_URI and
// returns a store over a fresh, uniquely named database with indexes ensured.
// The database is dropped when the test ends. Without the variable the test
// is skipped.
func SetupTestDB(t *testing.T) *entitystore.Mongo {
	t.Helper()
	uri := os.Getenv(MongoURIEnv)
	if uri == "" {
		t.Skipf("%s not set; skipping MongoDB test", MongoURIEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("failed to connect to MongoDB: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		t.Fatalf("failed to ping MongoDB: %v", err)
	}

	db := client.Database(fmt.Sprintf("collabhub_test_%s", primitive.NewObjectID().Hex()))
	es := entitystore.NewMongo(db)
	if err := indexes.EnsureAll(ctx, es, zap.NewNop()); err != nil {
		t.Fatalf("failed to ensure indexes: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return es
}
