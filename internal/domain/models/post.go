// internal/domain/models/post.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post belongs to exactly one parent: a group or a company.
// LikeCount and CommentCount are denormalized.
type Post struct {
	ID         primitive.ObjectID   `bson:"_id" json:"id"`
	GroupID    *primitive.ObjectID  `bson:"group_id,omitempty" json:"group_id,omitempty"`
	CompanyID  *primitive.ObjectID  `bson:"company_id,omitempty" json:"company_id,omitempty"`
	AuthorID   primitive.ObjectID   `bson:"author_id" json:"author_id"`
	AuthorName string               `bson:"author_name" json:"author_name"`
	Content    string               `bson:"content" json:"content"`
	Images     []string             `bson:"images" json:"images"`
	Likes      []primitive.ObjectID `bson:"likes" json:"likes"`

	LikeCount    int64 `bson:"like_count" json:"like_count"`
	CommentCount int64 `bson:"comment_count" json:"comment_count"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

func (p *Post) Normalize() {
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Likes == nil {
		p.Likes = []primitive.ObjectID{}
	}
	if p.AuthorName == "" {
		p.AuthorName = "Team Member"
	}
}

// Comment is a reply to a post.
type Comment struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	PostID     primitive.ObjectID `bson:"post_id" json:"post_id"`
	AuthorID   primitive.ObjectID `bson:"author_id" json:"author_id"`
	AuthorName string             `bson:"author_name" json:"author_name"`
	Content    string             `bson:"content" json:"content"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}
