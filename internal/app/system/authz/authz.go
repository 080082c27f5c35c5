// internal/app/system/authz/authz.go
package authz

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/collabhub/internal/app/store/entitystore"
	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/auth"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// AdminLookup finds the active admin record for a user.
// adminstore.Store satisfies it.
type AdminLookup interface {
	GetActiveByUser(ctx context.Context, userID primitive.ObjectID) (models.Admin, error)
}

// PermissionError is returned when an authenticated caller is not an admin.
type PermissionError struct {
	UserID string
	Action string
}

func (e *PermissionError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("user %s is not an active admin", e.UserID)
	}
	return fmt.Sprintf("user %s is not an active admin and cannot %s", e.UserID, e.Action)
}

func (e *PermissionError) Unwrap() error { return apperr.ErrPermission }

// UserCtx returns the caller's name, ObjectID, and a found flag.
// A malformed user id in the session fails closed (ok=false).
func UserCtx(r *http.Request) (name string, userID primitive.ObjectID, ok bool) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return "", primitive.NilObjectID, false
	}
	userID, ok = user.ObjectID()
	if !ok {
		return "", primitive.NilObjectID, false
	}
	return user.Name, userID, true
}

// CheckAdmin returns the active admin record for userID, or a
// PermissionError. Store failures are returned as-is.
func CheckAdmin(ctx context.Context, lookup AdminLookup, userID primitive.ObjectID, action string) (models.Admin, error) {
	a, err := lookup.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, entitystore.ErrNotFound) {
			return models.Admin{}, &PermissionError{UserID: userID.Hex(), Action: action}
		}
		return models.Admin{}, err
	}
	return a, nil
}

type ctxKey string

const adminKey ctxKey = "admin"

// AdminFrom returns the admin placed in ctx by RequireAdmin.
func AdminFrom(ctx context.Context) (models.Admin, bool) {
	a, ok := ctx.Value(adminKey).(models.Admin)
	return a, ok
}

// WithAdmin places a into ctx. Used by RequireAdmin and handler tests.
func WithAdmin(ctx context.Context, a models.Admin) context.Context {
	return context.WithValue(ctx, adminKey, a)
}

// RequireAdmin rejects callers without an active admin record: 401 when
// there is no caller, 403 when the caller is not an admin. The admin is
// re-read on every request so deactivation takes effect immediately.
func RequireAdmin(lookup AdminLookup, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, userID, ok := UserCtx(r)
			if !ok {
				apperr.WriteJSON(w, apperr.ErrUnauthenticated)
				return
			}

			admin, err := CheckAdmin(r.Context(), lookup, userID, r.Method+" "+r.URL.Path)
			if err != nil {
				var pe *PermissionError
				if errors.As(err, &pe) {
					logger.Info("admin access denied",
						zap.String("user_id", userID.Hex()),
						zap.String("path", r.URL.Path))
				} else {
					logger.Error("admin lookup failed", zap.Error(err))
					err = fmt.Errorf("%w: admin lookup: %w", apperr.ErrDownstreamUnavailable, err)
				}
				apperr.WriteJSON(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAdmin(r.Context(), admin)))
		})
	}
}
