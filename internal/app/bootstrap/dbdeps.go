// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
//
// WAFFLE passes DBDeps by value to every later hook, so state built in
// Startup (services, the job scheduler) hangs off the Runtime pointer.
type DBDeps struct {
	Backend string
	Store   entitystore.Store

	// Set only for the mongo backend.
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	Runtime *Runtime
}
