package lifecycle_test

import (
	"context"
	"testing"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"github.com/dalemusser/collabhub/internal/app/system/broker"
	"github.com/dalemusser/collabhub/internal/app/system/lifecycle"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"github.com/dalemusser/collabhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type harness struct {
	eng    *lifecycle.Engine
	es     *entitystore.Memory
	fx     *testutil.Fixtures
	mail   *testutil.FakeDispatcher
	broker *broker.Broker
	admin  primitive.ObjectID
	ctx    context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	es := testutil.NewStore(t)
	fx := testutil.NewFixtures(t, es)
	ctx := testutil.TestContext(t)
	mail := &testutil.FakeDispatcher{}
	b := broker.New()
	_, adminUser, _ := fx.CreateAdmin(ctx, "admin@x.com")
	return &harness{
		eng: lifecycle.New(lifecycle.Deps{
			Store:  es,
			Mailer: mail,
			Broker: b,
			Log:    zap.NewNop(),
		}),
		es:     es,
		fx:     fx,
		mail:   mail,
		broker: b,
		admin:  adminUser.ID,
		ctx:    ctx,
	}
}

func (h *harness) countNotifications(t models.NotificationType) int64 {
	return h.fx.Count(h.ctx, entitystore.Notifications, entitystore.Filter{"type": t})
}

// approvedProject creates and approves a project, returning it with its
// group id filled in.
func (h *harness) approvedProject(t *testing.T, title, ownerEmail string) (models.Project, primitive.ObjectID) {
	t.Helper()
	p := h.fx.CreateProject(h.ctx, title, ownerEmail)
	out, err := h.eng.ApproveProject(h.ctx, p.ID, h.admin)
	if err != nil {
		t.Fatalf("ApproveProject failed: %v", err)
	}
	gid, err := primitive.ObjectIDFromHex(out.GroupID)
	if err != nil {
		t.Fatalf("bad group id %q: %v", out.GroupID, err)
	}
	return p, gid
}
