package fanout

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type audienceKind int

const (
	kindGroupMembers audienceKind = iota
	kindGroupAdmins
	kindCompanyMembers
	kindUser
	kindEmail
	kindProjectOwners
)

// Audience describes who receives a notification. Recipients are computed
// when Notify runs, never cached.
type Audience struct {
	kind       audienceKind
	id         primitive.ObjectID
	email      string
	name       string
	projectIDs []primitive.ObjectID
}

// GroupMembers is every active member of a group.
func GroupMembers(groupID primitive.ObjectID) Audience {
	return Audience{kind: kindGroupMembers, id: groupID}
}

// GroupAdmins is the active admins of a group.
func GroupAdmins(groupID primitive.ObjectID) Audience {
	return Audience{kind: kindGroupAdmins, id: groupID}
}

// CompanyMembers is every active member of a company.
func CompanyMembers(companyID primitive.ObjectID) Audience {
	return Audience{kind: kindCompanyMembers, id: companyID}
}

// User is a single account holder.
func User(userID primitive.ObjectID) Audience {
	return Audience{kind: kindUser, id: userID}
}

// Email is a single recipient known only by address, such as a project
// contact or event organizer. name is used when no account matches.
func Email(email, name string) Audience {
	return Audience{kind: kindEmail, email: email, name: name}
}

// ProjectOwners is the owner (or contact, when no owner account is linked)
// of each listed project.
func ProjectOwners(projectIDs ...primitive.ObjectID) Audience {
	return Audience{kind: kindProjectOwners, projectIDs: projectIDs}
}

func (a Audience) fallback() string {
	if a.kind == kindCompanyMembers {
		return FallbackProfessionalUser
	}
	return FallbackTeamMember
}

func (a Audience) String() string {
	switch a.kind {
	case kindGroupMembers:
		return "group_members:" + a.id.Hex()
	case kindGroupAdmins:
		return "group_admins:" + a.id.Hex()
	case kindCompanyMembers:
		return "company_members:" + a.id.Hex()
	case kindUser:
		return "user:" + a.id.Hex()
	case kindEmail:
		return "email:" + a.email
	case kindProjectOwners:
		return "project_owners"
	}
	return "unknown"
}
