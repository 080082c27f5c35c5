package community

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/fanout"
	"github.com/dalemusser/collabhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// parent is the group or company a post belongs to.
type parent struct {
	groupID   *primitive.ObjectID
	companyID *primitive.ObjectID
	name      string
}

func (p parent) id() primitive.ObjectID {
	if p.groupID != nil {
		return *p.groupID
	}
	return *p.companyID
}

func (p parent) related() models.RelatedIDs {
	return models.RelatedIDs{GroupID: p.groupID, CompanyID: p.companyID}
}

// CreateGroupPost publishes a post to a group the author belongs to.
func (s *Service) CreateGroupPost(ctx context.Context, groupID, authorID primitive.ObjectID, content string) (models.Post, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return models.Post{}, apperr.FromStore(err, "group", groupID.Hex())
	}
	gid := g.ID
	return s.createPost(ctx, parent{groupID: &gid, name: g.Name}, authorID, content)
}

// CreateCompanyPost publishes a post to an active company.
func (s *Service) CreateCompanyPost(ctx context.Context, companyID, authorID primitive.ObjectID, content string) (models.Post, error) {
	c, err := s.activeCompany(ctx, companyID)
	if err != nil {
		return models.Post{}, err
	}
	cid := c.ID
	return s.createPost(ctx, parent{companyID: &cid, name: c.Name}, authorID, content)
}

func (s *Service) createPost(ctx context.Context, p parent, authorID primitive.ObjectID, content string) (models.Post, error) {
	content = htmlsanitize.Sanitize(content)
	if htmlsanitize.PlainText(content, "") == "" {
		return models.Post{}, apperr.Validation("post content is required")
	}
	author, err := s.activeMember(ctx, p, authorID)
	if err != nil {
		return models.Post{}, err
	}

	post, err := s.posts.Create(ctx, models.Post{
		GroupID:    p.groupID,
		CompanyID:  p.companyID,
		AuthorID:   authorID,
		AuthorName: author.Name,
		Content:    content,
	})
	if err != nil {
		return models.Post{}, apperr.FromStore(err, "post", p.id().Hex())
	}

	var cerr error
	if p.groupID != nil {
		cerr = s.groups.AdjustPostCount(ctx, *p.groupID, 1)
	} else {
		cerr = s.companies.AdmitPost(ctx, *p.companyID)
	}
	if cerr != nil {
		if derr := s.posts.Delete(ctx, post.ID); derr != nil {
			s.log.Error("community: could not remove post after counter failure",
				zap.String("post_id", post.ID.Hex()),
				zap.Error(derr))
		}
		if p.companyID != nil && errors.Is(cerr, entitystore.ErrConflict) {
			return models.Post{}, apperr.Conflict("company %s has ended", p.id().Hex())
		}
		return models.Post{}, apperr.FromStore(cerr, "post parent", p.id().Hex())
	}

	typ, aud, entity := models.NotifGroupPost, fanout.GroupMembers(p.id()), "group"
	if p.companyID != nil {
		typ, aud, entity = models.NotifCompanyPost, fanout.CompanyMembers(p.id()), "company"
	}
	related := p.related()
	pid := post.ID
	related.PostID = &pid
	s.fanout.Notify(ctx, fanout.Event{
		Type:    typ,
		Key:     string(typ) + ":" + post.ID.Hex(),
		Title:   "New post in " + p.name,
		Related: related,
		Subject: &fanout.Person{UserID: authorID, Email: author.Email, Name: author.Name},
		Message: func(name string) string {
			return fmt.Sprintf("%s posted in %s.", name, p.name)
		},
	}, aud, authorID)
	s.publish("post.created", entity, p.id(), authorID, map[string]string{"post_id": post.ID.Hex()})
	return post, nil
}

// AddComment replies to a post and notifies its author. The commenter must
// be an active member of the post's group or company, and a company must
// not have ended.
func (s *Service) AddComment(ctx context.Context, postID, authorID primitive.ObjectID, content string) (models.Comment, error) {
	content = htmlsanitize.Sanitize(content)
	if htmlsanitize.PlainText(content, "") == "" {
		return models.Comment{}, apperr.Validation("comment content is required")
	}
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return models.Comment{}, apperr.FromStore(err, "post", postID.Hex())
	}
	p, err := s.parentOf(ctx, post)
	if err != nil {
		return models.Comment{}, err
	}
	author, err := s.activeMember(ctx, p, authorID)
	if err != nil {
		return models.Comment{}, err
	}

	c, err := s.posts.AddComment(ctx, models.Comment{
		PostID:     postID,
		AuthorID:   authorID,
		AuthorName: author.Name,
		Content:    content,
	})
	if err != nil {
		return models.Comment{}, apperr.FromStore(err, "comment", postID.Hex())
	}
	if p.companyID != nil {
		if err := s.companies.TouchActivity(ctx, *p.companyID, c.CreatedAt); err != nil {
			s.dropComment(ctx, c.ID)
			if errors.Is(err, entitystore.ErrConflict) {
				return models.Comment{}, apperr.Conflict("company %s has ended", p.companyID.Hex())
			}
			return models.Comment{}, apperr.FromStore(err, "company", p.companyID.Hex())
		}
	}
	if err := s.posts.AdjustCommentCount(ctx, postID, 1); err != nil {
		s.dropComment(ctx, c.ID)
		return models.Comment{}, apperr.FromStore(err, "post", postID.Hex())
	}

	related := p.related()
	pid := post.ID
	related.PostID = &pid
	s.fanout.Notify(ctx, fanout.Event{
		Type:    models.NotifPostComment,
		Key:     "post_comment:" + c.ID.Hex(),
		Title:   "New comment on your post",
		Related: related,
		Subject: &fanout.Person{UserID: authorID, Email: author.Email, Name: author.Name},
		Message: func(name string) string {
			return fmt.Sprintf("%s commented on your post.", name)
		},
	}, fanout.User(post.AuthorID), authorID)
	s.publish("post.commented", "post", post.ID, authorID, map[string]string{"comment_id": c.ID.Hex()})
	return c, nil
}

// dropComment undoes a comment insert whose paired write failed.
func (s *Service) dropComment(ctx context.Context, id primitive.ObjectID) {
	if err := s.posts.DeleteComment(ctx, id); err != nil {
		s.log.Error("community: could not remove comment after a failed write",
			zap.String("comment_id", id.Hex()),
			zap.Error(err))
	}
}

// ToggleLike likes the post for userID, or unlikes it if already liked. It
// reports whether the post is liked afterwards.
func (s *Service) ToggleLike(ctx context.Context, postID, userID primitive.ObjectID) (bool, error) {
	err := s.posts.Like(ctx, postID, userID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, entitystore.ErrConflict) {
		return false, apperr.FromStore(err, "post", postID.Hex())
	}
	err = s.posts.Unlike(ctx, postID, userID)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, entitystore.ErrConflict):
		// A concurrent toggle already unliked it.
		return false, nil
	}
	return false, apperr.FromStore(err, "post", postID.Hex())
}

func (s *Service) parentOf(ctx context.Context, post models.Post) (parent, error) {
	switch {
	case post.GroupID != nil:
		g, err := s.groups.GetByID(ctx, *post.GroupID)
		if err != nil {
			return parent{}, apperr.FromStore(err, "group", post.GroupID.Hex())
		}
		return parent{groupID: post.GroupID, name: g.Name}, nil
	case post.CompanyID != nil:
		c, err := s.activeCompany(ctx, *post.CompanyID)
		if err != nil {
			return parent{}, err
		}
		return parent{companyID: post.CompanyID, name: c.Name}, nil
	}
	return parent{}, apperr.Conflict("post %s has no parent", post.ID.Hex())
}

// activeMember returns the user as a Member if they actively belong to p.
func (s *Service) activeMember(ctx context.Context, p parent, userID primitive.ObjectID) (Member, error) {
	key := models.MemberKey(userID, "")
	var status models.MemberStatus
	var email, name string
	if p.groupID != nil {
		m, err := s.members.Get(ctx, *p.groupID, key)
		if err != nil && !errors.Is(err, entitystore.ErrNotFound) {
			return Member{}, apperr.FromStore(err, "group member", key)
		}
		status, email, name = m.Status, m.UserEmail, m.DisplayName
	} else {
		m, err := s.companies.GetMember(ctx, *p.companyID, key)
		if err != nil && !errors.Is(err, entitystore.ErrNotFound) {
			return Member{}, apperr.FromStore(err, "company member", key)
		}
		status, email, name = m.Status, m.UserEmail, m.DisplayName
	}
	if status != models.MemberActive {
		return Member{}, fmt.Errorf("%w: user %s is not a member of %s", apperr.ErrPermission, userID.Hex(), p.name)
	}
	return Member{UserID: userID, Email: email, Name: name}, nil
}
