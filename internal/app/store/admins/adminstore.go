// internal/app/store/admins/adminstore.go
package adminstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"github.com/dalemusser/collabhub/internal/app/system/normalize"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidKey is returned when an API key does not match its admin record.
var ErrInvalidKey = errors.New("invalid api key")

type Store struct {
	es entitystore.Store
}

func New(es entitystore.Store) *Store {
	return &Store{es: es}
}

// GetActiveByUser returns the active admin record for a user. A user without
// one yields entitystore.ErrNotFound.
func (s *Store) GetActiveByUser(ctx context.Context, userID primitive.ObjectID) (models.Admin, error) {
	var a models.Admin
	if err := s.es.FindOne(ctx, entitystore.Admins, entitystore.Filter{"user_id": userID, "active": true}, &a); err != nil {
		return models.Admin{}, err
	}
	return a, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Admin, error) {
	var a models.Admin
	if err := s.es.Get(ctx, entitystore.Admins, id, &a); err != nil {
		return models.Admin{}, err
	}
	return a, nil
}

// Create grants admin rights to a user and returns the record plus the API
// key in "<adminID>.<secret>" form. Only the bcrypt hash of the secret is
// stored, so the key cannot be recovered later.
func (s *Store) Create(ctx context.Context, userID primitive.ObjectID, email string) (models.Admin, string, error) {
	secret, err := randomSecret()
	if err != nil {
		return models.Admin{}, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return models.Admin{}, "", err
	}
	a := models.Admin{
		ID:         primitive.NewObjectID(),
		UserID:     userID,
		Email:      normalize.Email(email),
		APIKeyHash: string(hash),
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.es.Insert(ctx, entitystore.Admins, a); err != nil {
		return models.Admin{}, "", err
	}
	return a, a.ID.Hex() + "." + secret, nil
}

// VerifyKey checks secret against the admin's stored hash. Inactive admins
// never verify.
func (s *Store) VerifyKey(ctx context.Context, adminID primitive.ObjectID, secret string) (models.Admin, error) {
	a, err := s.GetByID(ctx, adminID)
	if err != nil {
		if errors.Is(err, entitystore.ErrNotFound) {
			return models.Admin{}, ErrInvalidKey
		}
		return models.Admin{}, err
	}
	if !a.Active || a.APIKeyHash == "" {
		return models.Admin{}, ErrInvalidKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.APIKeyHash), []byte(secret)); err != nil {
		return models.Admin{}, ErrInvalidKey
	}
	return a, nil
}

func (s *Store) Deactivate(ctx context.Context, id primitive.ObjectID) error {
	return entitystore.Set(ctx, s.es, entitystore.Admins, id, bson.M{"active": false})
}

func randomSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
