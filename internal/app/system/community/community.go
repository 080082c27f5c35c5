// Package community covers the member-driven side of groups and companies:
// joining and leaving, ending a company, and posts with their comments and
// likes.
//
// Denormalized counters only move through atomic increments paired with the
// row change they describe. When the increment fails the row change is
// undone; the reconciler repairs anything that still drifts. Joins, posts
// and comments under a company finish with a write conditioned on the
// company not having ended, so they cannot land after EndCompany.
package community

import (
	"context"
	"errors"

	companystore "github.com/dalemusser/collabhub/internal/app/store/companies"
	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	groupstore "github.com/dalemusser/collabhub/internal/app/store/groups"
	membershipstore "github.com/dalemusser/collabhub/internal/app/store/memberships"
	poststore "github.com/dalemusser/collabhub/internal/app/store/posts"
	userstore "github.com/dalemusser/collabhub/internal/app/store/users"
	"github.com/dalemusser/collabhub/internal/app/system/auditlog"
	"github.com/dalemusser/collabhub/internal/app/system/broker"
	"github.com/dalemusser/collabhub/internal/app/system/fanout"
	"github.com/dalemusser/collabhub/internal/app/system/normalize"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Deps are the collaborators a Service needs. Audit and Broker may be nil.
type Deps struct {
	Store  entitystore.Store
	Fanout *fanout.Fanout
	Audit  *auditlog.Logger
	Broker *broker.Broker
	Log    *zap.Logger
}

type Service struct {
	groups    *groupstore.Store
	members   *membershipstore.Store
	companies *companystore.Store
	posts     *poststore.Store
	users     *userstore.Store
	fanout    *fanout.Fanout
	audit     *auditlog.Logger
	broker    *broker.Broker
	log       *zap.Logger
}

func New(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	fo := d.Fanout
	if fo == nil {
		fo = fanout.New(d.Store, log)
	}
	return &Service{
		groups:    groupstore.New(d.Store),
		members:   membershipstore.New(d.Store),
		companies: companystore.New(d.Store),
		posts:     poststore.New(d.Store),
		users:     userstore.New(d.Store),
		fanout:    fo,
		audit:     d.Audit,
		broker:    d.Broker,
		log:       log,
	}
}

// Member identifies someone joining a group or company. UserID may be zero
// for a person known only by email.
type Member struct {
	UserID primitive.ObjectID
	Email  string
	Name   string
	Role   models.MemberRole
}

// resolve links m to an account when one exists and fills its display name.
func (s *Service) resolve(ctx context.Context, m Member, fallback string) (Member, error) {
	m.Email = normalize.Email(m.Email)
	if m.Role == "" {
		m.Role = models.RoleMember
	}

	var u *models.User
	switch {
	case !m.UserID.IsZero():
		found, err := s.users.GetByID(ctx, m.UserID)
		if err == nil {
			u = &found
		} else if !errors.Is(err, entitystore.ErrNotFound) {
			return m, err
		}
	case m.Email != "":
		found, err := s.users.GetByEmail(ctx, m.Email)
		if err == nil {
			u = &found
			m.UserID = found.ID
		} else if !errors.Is(err, entitystore.ErrNotFound) {
			return m, err
		}
	}
	if u != nil && m.Email == "" {
		m.Email = u.Email
	}
	m.Name = fanout.DisplayName(u, m.Name, m.Email, fallback)
	return m, nil
}

func (s *Service) publish(kind, entity string, id, actor primitive.ObjectID, data map[string]string) {
	msg := broker.Message{Kind: kind, Entity: entity, EntityID: id.Hex(), Data: data}
	if !actor.IsZero() {
		msg.ActorID = actor.Hex()
	}
	s.broker.Publish(msg)
}
