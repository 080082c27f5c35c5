package userstore

import (
	"context"
	"time"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"github.com/dalemusser/collabhub/internal/app/system/normalize"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store struct {
	es entitystore.Store
}

func New(es entitystore.Store) *Store {
	return &Store{es: es}
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	var u models.User
	if err := s.es.Get(ctx, entitystore.Users, id, &u); err != nil {
		return models.User{}, err
	}
	u.Normalize()
	return u, nil
}

// GetByEmail loads a user by email (case-insensitive).
func (s *Store) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	if err := s.es.FindOne(ctx, entitystore.Users, entitystore.Filter{"email": normalize.Email(email)}, &u); err != nil {
		return models.User{}, err
	}
	u.Normalize()
	return u, nil
}

// ListByIDs returns the users that exist among ids, keyed by id.
func (s *Store) ListByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error) {
	out := make(map[primitive.ObjectID]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := s.es.Find(ctx, entitystore.Users, entitystore.Filter{"_id": bson.M{"$in": ids}}, &users); err != nil {
		return nil, err
	}
	for _, u := range users {
		u.Normalize()
		out[u.ID] = u
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	now := time.Now().UTC()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	u.Normalize()
	u.CreatedAt = now
	u.UpdatedAt = now
	if err := s.es.Insert(ctx, entitystore.Users, u); err != nil {
		return models.User{}, err
	}
	return u, nil
}
