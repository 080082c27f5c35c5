// Package auth identifies the caller of an API request. Callers come from a
// gorilla session cookie (browser admin console) or from an
// "Authorization: Bearer <adminID>.<secret>" API key (collabctl, scripts).
// Deciding what a caller may do is authz's job.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	isAuthKey = "is_authenticated"
	userIDKey = "user_id"
	userName  = "user_name"
	userEmail = "user_email"
)

// Ways a caller can be identified.
const (
	ViaSession = "session"
	ViaAPIKey  = "api_key"
)

// SessionUser is what we cache in the session & inject into r.Context().
type SessionUser struct {
	ID    string
	Name  string
	Email string
	Via   string
	// AdminID is set when the caller authenticated with an admin API key.
	AdminID string
}

// ObjectID parses the user id. ok is false for malformed ids.
func (u *SessionUser) ObjectID() (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(u.ID)
	return id, err == nil
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & "found?" flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	return FromContext(r.Context())
}

func FromContext(ctx context.Context) (*SessionUser, bool) {
	u, ok := ctx.Value(currentUserKey).(*SessionUser)
	return u, ok
}

// WithTestUser injects u into the request context, bypassing cookies and keys.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Sessions                                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionManager owns the cookie store.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
	log   *zap.Logger
}

// NewSessionManager builds a cookie store. In production (secure=true)
// cookies are Secure + SameSite=None; for local http use secure=false.
// An empty key is only accepted when secure is false, in which case a random
// per-process key is generated and sessions do not survive restarts.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	key := []byte(sessionKey)
	if sessionKey == "" {
		if secure {
			return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
		}
		key = securecookie.GenerateRandomKey(32)
		if key == nil {
			return nil, errors.New("could not generate a session key")
		}
		logger.Warn("no session key configured; using a random key for this process")
	} else if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}

	store := sessions.NewCookieStore(key)
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
	}
	if secure {
		opts.SameSite = http.SameSiteNoneMode
	} else {
		opts.SameSite = http.SameSiteLaxMode
	}
	store.Options = opts

	if name == "" {
		name = "collabhub-session"
	}

	logger.Info("session store initialized",
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: name, log: logger}, nil
}

// LoadSessionUser injects the session user into context if they are logged in.
// A request that already carries a user (API key) is left alone.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := sm.store.Get(r, sm.name)
		if err != nil {
			var mErr securecookie.MultiError
			if errors.As(err, &mErr) && mErr.IsDecode() {
				sm.log.Debug("ignoring undecodable session cookie", zap.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}

		if isAuth, _ := sess.Values[isAuthKey].(bool); isAuth {
			u := &SessionUser{
				ID:    getString(sess, userIDKey),
				Name:  getString(sess, userName),
				Email: getString(sess, userEmail),
				Via:   ViaSession,
			}
			r = withUser(r, u)
		}
		next.ServeHTTP(w, r)
	})
}

// SaveUser marks the session as authenticated for u.
func (sm *SessionManager) SaveUser(w http.ResponseWriter, r *http.Request, u SessionUser) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = u.ID
	sess.Values[userName] = u.Name
	sess.Values[userEmail] = u.Email
	return sess.Save(r, w)
}

// Clear ends the session.
func (sm *SessionManager) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// RequireSignedIn ensures there is a user in context; API callers get a
// JSON 401.
func RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		apperr.WriteJSON(w, apperr.ErrUnauthenticated)
	})
}

/*─────────────────────────────────────────────────────────────────────────────*
| API keys                                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

// KeyVerifier checks an admin API key secret. adminstore.Store satisfies it.
type KeyVerifier interface {
	VerifyKey(ctx context.Context, adminID primitive.ObjectID, secret string) (models.Admin, error)
}

// ParseAPIKey splits "<adminIDhex>.<secret>".
func ParseAPIKey(key string) (primitive.ObjectID, string, bool) {
	idHex, secret, ok := strings.Cut(strings.TrimSpace(key), ".")
	if !ok || secret == "" {
		return primitive.NilObjectID, "", false
	}
	id, err := primitive.ObjectIDFromHex(idHex)
	if err != nil {
		return primitive.NilObjectID, "", false
	}
	return id, secret, true
}

// LoadAPIKey authenticates requests carrying a bearer API key. A request
// with a bearer header that does not verify is rejected with 401 rather
// than falling through to the session.
func LoadAPIKey(v KeyVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, found := strings.CutPrefix(h, "Bearer ")
			if !found {
				apperr.WriteJSON(w, fmt.Errorf("%w: unsupported authorization scheme", apperr.ErrUnauthenticated))
				return
			}
			adminID, secret, ok := ParseAPIKey(token)
			if !ok {
				apperr.WriteJSON(w, fmt.Errorf("%w: malformed api key", apperr.ErrUnauthenticated))
				return
			}
			admin, err := v.VerifyKey(r.Context(), adminID, secret)
			if err != nil {
				logger.Info("api key rejected",
					zap.String("admin_id", adminID.Hex()),
					zap.Error(err))
				apperr.WriteJSON(w, fmt.Errorf("%w: invalid api key", apperr.ErrUnauthenticated))
				return
			}
			u := &SessionUser{
				ID:      admin.UserID.Hex(),
				Email:   admin.Email,
				Via:     ViaAPIKey,
				AdminID: admin.ID.Hex(),
			}
			next.ServeHTTP(w, withUser(r, u))
		})
	}
}

// helpers

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

// getString safely extracts a string from a session value.
func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}
