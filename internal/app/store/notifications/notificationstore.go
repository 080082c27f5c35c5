// internal/app/store/notifications/notificationstore.go
package notificationstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrAlreadyDelivered is returned by Insert when a notification with the same
// dedupe key exists. Fan-out treats it as success.
var ErrAlreadyDelivered = errors.New("notification already delivered")

type Store struct {
	es entitystore.Store
}

func New(es entitystore.Store) *Store {
	return &Store{es: es}
}

func (s *Store) Insert(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := s.es.Insert(ctx, entitystore.Notifications, n); err != nil {
		if errors.Is(err, entitystore.ErrConflict) && n.DedupeKey != "" {
			return models.Notification{}, ErrAlreadyDelivered
		}
		return models.Notification{}, err
	}
	return n, nil
}

// ListForUser returns a user's notifications, newest first.
func (s *Store) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Notification, error) {
	return s.list(ctx, entitystore.Filter{"user_id": userID})
}

// ListForEmail returns notifications addressed to an email without an account.
func (s *Store) ListForEmail(ctx context.Context, email string) ([]models.Notification, error) {
	return s.list(ctx, entitystore.Filter{"recipient_email": email})
}

// ListByType returns every notification of one type, newest first.
func (s *Store) ListByType(ctx context.Context, t models.NotificationType) ([]models.Notification, error) {
	return s.list(ctx, entitystore.Filter{"type": t})
}

func (s *Store) list(ctx context.Context, f entitystore.Filter) ([]models.Notification, error) {
	var out []models.Notification
	if err := s.es.Find(ctx, entitystore.Notifications, f, &out); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, id primitive.ObjectID) error {
	return entitystore.Set(ctx, s.es, entitystore.Notifications, id, bson.M{"read": true})
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.es.Count(ctx, entitystore.Notifications, entitystore.Filter{})
}

// DeleteReadBefore removes read notifications created before cutoff.
func (s *Store) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.es.DeleteMany(ctx, entitystore.Notifications, entitystore.Filter{
		"read":       true,
		"created_at": bson.M{"$lt": cutoff},
	})
}
