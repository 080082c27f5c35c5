// internal/app/store/posts/poststore.go
package poststore

import (
	"context"
	"time"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store covers posts and their comments.
type Store struct {
	es entitystore.Store
}

func New(es entitystore.Store) *Store {
	return &Store{es: es}
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Post, error) {
	var p models.Post
	if err := s.es.Get(ctx, entitystore.Posts, id, &p); err != nil {
		return models.Post{}, err
	}
	p.Normalize()
	return p, nil
}

// Create inserts a post with zeroed counters and no likes.
func (s *Store) Create(ctx context.Context, p models.Post) (models.Post, error) {
	now := time.Now().UTC()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	p.Likes = []primitive.ObjectID{}
	p.LikeCount = 0
	p.CommentCount = 0
	if p.Images == nil {
		p.Images = []string{}
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.es.Insert(ctx, entitystore.Posts, p); err != nil {
		return models.Post{}, err
	}
	p.Normalize()
	return p, nil
}

func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	return s.es.Delete(ctx, entitystore.Posts, id)
}

// Like adds userID to the post's likes. The add and the like_count increment
// are one atomic update, and the condition makes a repeat like a conflict.
func (s *Store) Like(ctx context.Context, postID, userID primitive.ObjectID) error {
	return s.es.Apply(ctx, entitystore.Posts, postID,
		entitystore.Filter{"likes": bson.M{"$ne": userID}},
		entitystore.Mutation{
			AddToSet: bson.M{"likes": userID},
			Inc:      bson.M{"like_count": 1},
		})
}

// Unlike reverses Like. It returns entitystore.ErrConflict if userID had not
// liked the post.
func (s *Store) Unlike(ctx context.Context, postID, userID primitive.ObjectID) error {
	return s.es.Apply(ctx, entitystore.Posts, postID,
		entitystore.Filter{"likes": userID},
		entitystore.Mutation{
			Pull: bson.M{"likes": userID},
			Inc:  bson.M{"like_count": -1},
		})
}

func (s *Store) AdjustCommentCount(ctx context.Context, postID primitive.ObjectID, delta int64) error {
	return entitystore.Increment(ctx, s.es, entitystore.Posts, postID, "comment_count", delta)
}

// RepairCommentCount sets comment_count to actual only if it still holds observed.
func (s *Store) RepairCommentCount(ctx context.Context, postID primitive.ObjectID, observed, actual int64) error {
	return entitystore.CompareAndSet(ctx, s.es, entitystore.Posts, postID,
		entitystore.CounterIs("comment_count", observed),
		bson.M{"comment_count": actual})
}

func (s *Store) ListIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	return s.es.IDs(ctx, entitystore.Posts, entitystore.Filter{})
}

func (s *Store) ListByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.Post, error) {
	return s.list(ctx, entitystore.Filter{"group_id": groupID})
}

func (s *Store) ListByCompany(ctx context.Context, companyID primitive.ObjectID) ([]models.Post, error) {
	return s.list(ctx, entitystore.Filter{"company_id": companyID})
}

func (s *Store) list(ctx context.Context, f entitystore.Filter) ([]models.Post, error) {
	var out []models.Post
	if err := s.es.Find(ctx, entitystore.Posts, f, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Normalize()
	}
	return out, nil
}

// AddComment inserts a comment row. Callers pair it with AdjustCommentCount.
func (s *Store) AddComment(ctx context.Context, c models.Comment) (models.Comment, error) {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if c.AuthorName == "" {
		c.AuthorName = "Team Member"
	}
	c.CreatedAt = time.Now().UTC()
	if err := s.es.Insert(ctx, entitystore.Comments, c); err != nil {
		return models.Comment{}, err
	}
	return c, nil
}

// DeleteComment removes one comment row.
func (s *Store) DeleteComment(ctx context.Context, id primitive.ObjectID) error {
	return s.es.Delete(ctx, entitystore.Comments, id)
}

func (s *Store) CountComments(ctx context.Context, postID primitive.ObjectID) (int64, error) {
	return s.es.Count(ctx, entitystore.Comments, entitystore.Filter{"post_id": postID})
}
