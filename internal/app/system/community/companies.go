package community

import (
	"context"
	"errors"
	"fmt"
	"time"

	companystore "github.com/dalemusser/collabhub/internal/app/store/companies"
	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/fanout"
	"github.com/dalemusser/collabhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// CreateCompany creates an active company with its creator as the only admin.
func (s *Service) CreateCompany(ctx context.Context, name, description string, creatorID primitive.ObjectID) (models.Company, error) {
	name = htmlsanitize.PlainText(name, "")
	if name == "" {
		return models.Company{}, apperr.Validation("company name is required")
	}
	if _, err := s.users.GetByID(ctx, creatorID); err != nil {
		return models.Company{}, apperr.FromStore(err, "user", creatorID.Hex())
	}

	c, err := s.companies.Create(ctx, models.Company{
		Name:        name,
		Description: htmlsanitize.PlainText(description, ""),
		CreatedBy:   creatorID,
	})
	if err != nil {
		return models.Company{}, apperr.FromStore(err, "company", name)
	}
	if _, err := s.addCompanyMember(ctx, c, Member{UserID: creatorID, Role: models.RoleAdmin}); err != nil {
		if derr := s.companies.Delete(ctx, c.ID); derr != nil {
			s.log.Error("community: could not remove company after admin insert failed",
				zap.String("company_id", c.ID.Hex()),
				zap.Error(derr))
		}
		return models.Company{}, err
	}
	c.MemberCount = 1
	s.publish("company.created", "company", c.ID, creatorID, nil)
	return c, nil
}

// JoinCompany adds the user to an active company.
func (s *Service) JoinCompany(ctx context.Context, companyID, userID primitive.ObjectID) (Membership, error) {
	c, err := s.activeCompany(ctx, companyID)
	if err != nil {
		return Membership{}, err
	}
	res, err := s.addCompanyMember(ctx, c, Member{UserID: userID, Role: models.RoleMember})
	if err != nil || !res.Joined {
		return res, err
	}

	cid := c.ID
	s.fanout.Notify(ctx, fanout.Event{
		Type:    models.NotifCompanyMemberJoined,
		Key:     fmt.Sprintf("company_member_joined:%s:%d", res.MemberID.Hex(), res.JoinedAt.UnixMilli()),
		Title:   "New company member",
		Related: models.RelatedIDs{CompanyID: &cid},
		Subject: &fanout.Person{UserID: res.UserID, Email: res.Email, Name: res.Name},
		Message: func(name string) string {
			return fmt.Sprintf("%s joined %s.", name, c.Name)
		},
	}, fanout.CompanyMembers(c.ID), userID)
	s.publish("company.member_joined", "company", c.ID, userID, map[string]string{"member_id": res.MemberID.Hex()})
	return res, nil
}

func (s *Service) addCompanyMember(ctx context.Context, c models.Company, m Member) (Membership, error) {
	m, err := s.resolve(ctx, m, fanout.FallbackProfessionalUser)
	if err != nil {
		return Membership{}, apperr.FromStore(err, "user", m.UserID.Hex())
	}

	res := Membership{UserID: m.UserID, Email: m.Email, Name: m.Name}
	var undo func(context.Context) error

	row, err := s.companies.AddMember(ctx, models.CompanyMember{
		CompanyID:   c.ID,
		UserID:      m.UserID,
		UserEmail:   m.Email,
		DisplayName: m.Name,
		Role:        m.Role,
	})
	switch {
	case err == nil:
		res.MemberID = row.ID
		res.JoinedAt = row.JoinedAt
		undo = func(ctx context.Context) error { return s.companies.DeleteMember(ctx, row.ID) }

	case errors.Is(err, companystore.ErrDuplicateMembership):
		existing, gerr := s.companies.GetMember(ctx, c.ID, models.MemberKey(m.UserID, m.Email))
		if gerr != nil {
			return Membership{}, apperr.FromStore(gerr, "company member", c.ID.Hex())
		}
		res.MemberID = existing.ID
		if existing.Status == models.MemberActive {
			return res, nil
		}
		now := time.Now().UTC()
		rerr := s.companies.ReactivateMember(ctx, existing.ID, m.Role, now)
		if errors.Is(rerr, entitystore.ErrConflict) {
			return res, nil
		}
		if rerr != nil {
			return Membership{}, apperr.FromStore(rerr, "company member", existing.ID.Hex())
		}
		res.Reactivated = true
		res.JoinedAt = now
		undo = func(ctx context.Context) error { return s.companies.DeactivateMember(ctx, existing.ID, now) }

	default:
		return Membership{}, apperr.FromStore(err, "company member", c.ID.Hex())
	}

	// The increment is conditional on the company not having ended, which
	// orders this join against a concurrent EndCompany.
	if err := s.companies.AdmitMember(ctx, c.ID); err != nil {
		if uerr := undo(ctx); uerr != nil {
			s.log.Error("community: could not undo company member after counter failure",
				zap.String("company_id", c.ID.Hex()),
				zap.String("member_id", res.MemberID.Hex()),
				zap.Error(uerr))
		}
		if errors.Is(err, entitystore.ErrConflict) {
			return Membership{}, apperr.Conflict("company %s has ended", c.ID.Hex())
		}
		return Membership{}, apperr.FromStore(err, "company", c.ID.Hex())
	}
	res.Joined = true
	return res, nil
}

// LeaveCompany removes the user from a company. Admins may leave only once
// the company has ended.
func (s *Service) LeaveCompany(ctx context.Context, companyID, userID primitive.ObjectID) error {
	c, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return apperr.FromStore(err, "company", companyID.Hex())
	}
	m, err := s.companies.GetMember(ctx, companyID, models.MemberKey(userID, ""))
	if err != nil {
		return apperr.FromStore(err, "company member", userID.Hex())
	}
	if m.Status == models.MemberRemoved {
		return apperr.Conflict("user %s is not an active member of company %s", userID.Hex(), companyID.Hex())
	}
	if m.Role == models.RoleAdmin && c.Status != models.CompanyEnded {
		return apperr.Conflict("company admins cannot leave until the company has ended")
	}

	if err := s.companies.DeactivateMember(ctx, m.ID, time.Now().UTC()); err != nil {
		if errors.Is(err, entitystore.ErrConflict) {
			return apperr.Conflict("user %s already left company %s", userID.Hex(), companyID.Hex())
		}
		return apperr.FromStore(err, "company member", m.ID.Hex())
	}
	if err := s.companies.AdjustMemberCount(ctx, companyID, -1); err != nil {
		if uerr := s.companies.ReactivateMember(ctx, m.ID, m.Role, m.JoinedAt); uerr != nil {
			s.log.Error("community: could not restore company member after counter failure",
				zap.String("company_id", companyID.Hex()),
				zap.String("member_id", m.ID.Hex()),
				zap.Error(uerr))
		}
		return apperr.FromStore(err, "company", companyID.Hex())
	}
	s.publish("company.member_left", "company", companyID, userID, nil)
	return nil
}

// EndCompany closes a company to new members, posts, and comments, and
// tells its members.
func (s *Service) EndCompany(ctx context.Context, companyID, adminID primitive.ObjectID) (fanout.Result, error) {
	c, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return fanout.Result{}, apperr.FromStore(err, "company", companyID.Hex())
	}
	if c.Status == models.CompanyEnded {
		return fanout.Result{}, apperr.Conflict("company %s has already ended", companyID.Hex())
	}
	if err := s.companies.End(ctx, companyID, time.Now().UTC()); err != nil {
		if errors.Is(err, entitystore.ErrConflict) {
			return fanout.Result{}, apperr.Conflict("company %s has already ended", companyID.Hex())
		}
		return fanout.Result{}, apperr.FromStore(err, "company", companyID.Hex())
	}
	s.audit.CompanyEnded(ctx, adminID, companyID)

	cid := c.ID
	res := s.fanout.Notify(ctx, fanout.Event{
		Type:    models.NotifCompanyEnded,
		Key:     "company_ended:" + c.ID.Hex(),
		Title:   "Company ended",
		Related: models.RelatedIDs{CompanyID: &cid},
		Message: func(name string) string {
			return fmt.Sprintf("Hi %s, %s has ended. Posts remain readable but no new activity is accepted.", name, c.Name)
		},
	}, fanout.CompanyMembers(c.ID), adminID)
	s.publish("company.ended", "company", c.ID, adminID, nil)
	return res, nil
}

func (s *Service) activeCompany(ctx context.Context, companyID primitive.ObjectID) (models.Company, error) {
	c, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return models.Company{}, apperr.FromStore(err, "company", companyID.Hex())
	}
	if c.Status == models.CompanyEnded {
		return models.Company{}, apperr.Conflict("company %s has ended", companyID.Hex())
	}
	return c, nil
}
