// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup (and by test fixtures on the memory store).
Each collection's set is idempotent. We aggregate errors so any problem is
visible and startup can fail fast.

Several of these indexes carry correctness, not just speed:
  - groups.project_id (unique, sparse): one group per approved project
  - group_members / company_members (parent, member_key) unique: one row per person
  - notifications.dedupe_key (unique, sparse): exactly-once fan-out
  - event_registrations (event_id, user_id) unique
*/
func EnsureAll(ctx context.Context, es entitystore.Store, log *zap.Logger) error {
	var problems []string

	byColl := map[string][]entitystore.Index{}
	var order []string
	for _, ix := range Definitions() {
		if _, ok := byColl[ix.Collection]; !ok {
			order = append(order, ix.Collection)
		}
		byColl[ix.Collection] = append(byColl[ix.Collection], ix)
	}

	for _, coll := range order {
		set := byColl[coll]
		for _, ix := range set {
			log.Debug("ensuring index",
				zap.String("collection", coll),
				zap.String("name", ix.Name),
				zap.Strings("keys", ix.Fields),
				zap.Bool("unique", ix.Unique))
		}
		if err := es.EnsureIndexes(ctx, set); err != nil {
			problems = append(problems, coll+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Definitions lists every index the application relies on.
func Definitions() []entitystore.Index {
	return []entitystore.Index{
		// users
		{Collection: entitystore.Users, Name: "uniq_users_email", Fields: []string{"email"}, Unique: true},

		// admins
		{Collection: entitystore.Admins, Name: "idx_admins_user", Fields: []string{"user_id"}},

		// projects
		{Collection: entitystore.Projects, Name: "idx_projects_status", Fields: []string{"status"}},
		{Collection: entitystore.Projects, Name: "idx_projects_owner", Fields: []string{"owner_user_id"}},

		// events
		{Collection: entitystore.Events, Name: "idx_events_status", Fields: []string{"status"}},
		{Collection: entitystore.EventRegistrations, Name: "uniq_eventreg_event_user", Fields: []string{"event_id", "user_id"}, Unique: true},

		// groups
		{Collection: entitystore.Groups, Name: "uniq_groups_project", Fields: []string{"project_id"}, Unique: true, Sparse: true},
		{Collection: entitystore.GroupMembers, Name: "uniq_groupmember_group_key", Fields: []string{"group_id", "member_key"}, Unique: true},
		{Collection: entitystore.GroupMembers, Name: "idx_groupmember_user", Fields: []string{"user_id"}},

		// completion
		{Collection: entitystore.CompletionRequests, Name: "idx_completion_group_status", Fields: []string{"group_id", "status"}},
		{Collection: entitystore.MemberBadges, Name: "idx_badges_group", Fields: []string{"group_id"}},
		{Collection: entitystore.Certificates, Name: "idx_certificates_group", Fields: []string{"group_id"}},

		// companies
		{Collection: entitystore.CompanyMembers, Name: "uniq_companymember_company_key", Fields: []string{"company_id", "member_key"}, Unique: true},

		// posts and comments
		{Collection: entitystore.Posts, Name: "idx_posts_group", Fields: []string{"group_id"}},
		{Collection: entitystore.Posts, Name: "idx_posts_company", Fields: []string{"company_id"}},
		{Collection: entitystore.Comments, Name: "idx_comments_post", Fields: []string{"post_id"}},

		// applications
		{Collection: entitystore.ProjectApplications, Name: "idx_applications_project", Fields: []string{"project_id", "status"}},

		// notifications
		{Collection: entitystore.Notifications, Name: "uniq_notifications_dedupe", Fields: []string{"dedupe_key"}, Unique: true, Sparse: true},
		{Collection: entitystore.Notifications, Name: "idx_notifications_user", Fields: []string{"user_id", "created_at"}},
		{Collection: entitystore.Notifications, Name: "idx_notifications_group", Fields: []string{"related_ids.group_id"}},
		{Collection: entitystore.Notifications, Name: "idx_notifications_project", Fields: []string{"related_ids.project_id"}},
		{Collection: entitystore.Notifications, Name: "idx_notifications_event", Fields: []string{"related_ids.event_id"}},
		{Collection: entitystore.Notifications, Name: "idx_notifications_company", Fields: []string{"related_ids.company_id"}},
		{Collection: entitystore.Notifications, Name: "idx_notifications_post", Fields: []string{"related_ids.post_id"}},

		// audit
		{Collection: entitystore.AuditEvents, Name: "idx_audit_target_time", Fields: []string{"target_id", "timestamp"}},
		{Collection: entitystore.AuditEvents, Name: "idx_audit_actor_time", Fields: []string{"actor_id", "timestamp"}},
	}
}
