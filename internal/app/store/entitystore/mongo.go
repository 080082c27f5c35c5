// internal/app/store/entitystore/mongo.go
package entitystore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Mongo implements Store on a MongoDB database.
type Mongo struct {
	db *mongo.Database
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

// Database exposes the underlying database for health checks and tests.
func (m *Mongo) Database() *mongo.Database {
	return m.db
}

// classify maps driver errors onto the store's error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if wafflemongo.IsDup(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 13 || ce.Code == 8000) { // Unauthorized, AtlasError
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return err
}

func (m *Mongo) Get(ctx context.Context, coll string, id primitive.ObjectID, out any) error {
	return classify(m.db.Collection(coll).FindOne(ctx, bson.M{"_id": id}).Decode(out))
}

func (m *Mongo) FindOne(ctx context.Context, coll string, filter Filter, out any) error {
	if filter == nil {
		filter = Filter{}
	}
	return classify(m.db.Collection(coll).FindOne(ctx, filter).Decode(out))
}

func (m *Mongo) Find(ctx context.Context, coll string, filter Filter, out any) error {
	if filter == nil {
		filter = Filter{}
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := m.db.Collection(coll).Find(ctx, filter, opts)
	if err != nil {
		return classify(err)
	}
	defer cur.Close(ctx)
	return classify(cur.All(ctx, out))
}

func (m *Mongo) Count(ctx context.Context, coll string, filter Filter) (int64, error) {
	if filter == nil {
		filter = Filter{}
	}
	n, err := m.db.Collection(coll).CountDocuments(ctx, filter)
	return n, classify(err)
}

func (m *Mongo) IDs(ctx context.Context, coll string, filter Filter) ([]primitive.ObjectID, error) {
	if filter == nil {
		filter = Filter{}
	}
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := m.db.Collection(coll).Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err)
	}
	defer cur.Close(ctx)

	var ids []primitive.ObjectID
	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, classify(err)
		}
		ids = append(ids, row.ID)
	}
	return ids, classify(cur.Err())
}

func (m *Mongo) Insert(ctx context.Context, coll string, doc any) error {
	_, err := m.db.Collection(coll).InsertOne(ctx, doc)
	return classify(err)
}

func (m *Mongo) Apply(ctx context.Context, coll string, id primitive.ObjectID, cond Filter, mut Mutation) error {
	if mut.empty() {
		return errors.New("entitystore: empty mutation")
	}
	filter := bson.M{"_id": id}
	for k, v := range cond {
		filter[k] = v
	}
	update := bson.M{}
	if len(mut.Set) > 0 {
		update["$set"] = mut.Set
	}
	if len(mut.Inc) > 0 {
		update["$inc"] = mut.Inc
	}
	if len(mut.AddToSet) > 0 {
		update["$addToSet"] = mut.AddToSet
	}
	if len(mut.Pull) > 0 {
		update["$pull"] = mut.Pull
	}

	c := m.db.Collection(coll)
	res, err := c.UpdateOne(ctx, filter, update)
	if err != nil {
		return classify(err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := c.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func (m *Mongo) Delete(ctx context.Context, coll string, id primitive.ObjectID) error {
	res, err := m.db.Collection(coll).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return classify(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) DeleteMany(ctx context.Context, coll string, filter Filter) (int64, error) {
	if filter == nil {
		filter = Filter{}
	}
	res, err := m.db.Collection(coll).DeleteMany(ctx, filter)
	if err != nil {
		return 0, classify(err)
	}
	return res.DeletedCount, nil
}

// EnsureIndexes reconciles the given indexes with what exists. An index with
// the same keys and options is reused (renamed if its name differs); one with
// different options is dropped and recreated. Each index is attempted even if
// an earlier one failed.
func (m *Mongo) EnsureIndexes(ctx context.Context, indexes []Index) error {
	var problems []string
	for _, ix := range indexes {
		if err := m.ensureIndex(ctx, ix); err != nil {
			problems = append(problems, ix.Collection+"."+ix.Name+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
	Sparse *bool  `bson:"sparse,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func boolVal(b *bool) bool {
	return b != nil && *b
}

func (m *Mongo) ensureIndex(ctx context.Context, ix Index) error {
	keys := bson.D{}
	for _, f := range ix.Fields {
		keys = append(keys, bson.E{Key: f, Value: int32(1)})
	}
	opts := options.Index().SetName(ix.Name)
	if ix.Unique {
		opts.SetUnique(true)
	}
	if ix.Sparse {
		opts.SetSparse(true)
	}
	model := mongo.IndexModel{Keys: keys, Options: opts}
	view := m.db.Collection(ix.Collection).Indexes()

	var found *existingIndex
	if cur, err := view.List(ctx); err == nil {
		defer cur.Close(ctx)
		for cur.Next(ctx) {
			var ex existingIndex
			if err := cur.Decode(&ex); err != nil {
				continue
			}
			if keySig(ex.Key) == keySig(keys) {
				found = &ex
				break
			}
		}
	}

	if found != nil {
		sameOpts := boolVal(found.Unique) == ix.Unique && boolVal(found.Sparse) == ix.Sparse
		if sameOpts && found.Name == ix.Name {
			return nil
		}
		// Name or options differ: drop and recreate under the desired definition.
		if _, err := view.DropOne(ctx, found.Name); err != nil {
			return fmt.Errorf("drop %s: %w", found.Name, err)
		}
	}

	if _, err := view.CreateOne(ctx, model); err != nil {
		if isOptionsConflictErr(err) {
			return nil
		}
		if wafflemongo.IsDup(err) {
			return fmt.Errorf("cannot create unique index (duplicates present): %w", err)
		}
		return err
	}
	return nil
}

// Mongo/DocDB sometimes returns IndexOptionsConflict when an index with the
// same keys already exists under a different name.
func isOptionsConflictErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "IndexOptionsConflict") || strings.Contains(s, "IndexKeySpecsConflict")
}

func (m *Mongo) Ping(ctx context.Context) error {
	return classify(m.db.Client().Ping(ctx, readpref.Primary()))
}
