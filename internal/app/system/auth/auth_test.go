package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/collabhub/internal/app/system/auth"
	"github.com/dalemusser/collabhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func newTestSessionManager(t *testing.T) *auth.SessionManager {
	t.Helper()
	sm, err := auth.NewSessionManager(
		"test-session-key-must-be-32-chars-long",
		"test-session",
		"",
		24*time.Hour,
		false,
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	return sm
}

func okHandler(seen **auth.SessionUser) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := auth.CurrentUser(r); ok && seen != nil {
			*seen = u
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewSessionManager_EmptyKey(t *testing.T) {
	if _, err := auth.NewSessionManager("", "s", "", time.Hour, true, zap.NewNop()); err == nil {
		t.Error("expected error for empty key in secure mode")
	}
	if _, err := auth.NewSessionManager("", "s", "", time.Hour, false, zap.NewNop()); err != nil {
		t.Errorf("insecure mode should generate a key: %v", err)
	}
}

func TestRequireSignedIn_NoUser_Returns401(t *testing.T) {
	handler := auth.RequireSignedIn(okHandler(nil))

	req := httptest.NewRequest("POST", "/api/admin/projects/x/approve", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestRequireSignedIn_WithUser_Proceeds(t *testing.T) {
	handler := auth.RequireSignedIn(okHandler(nil))

	req := httptest.NewRequest("GET", "/", nil)
	req = auth.WithTestUser(req, &auth.SessionUser{ID: primitive.NewObjectID().Hex()})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestSession_RoundTrip(t *testing.T) {
	sm := newTestSessionManager(t)
	uid := primitive.NewObjectID().Hex()

	saveRec := httptest.NewRecorder()
	saveReq := httptest.NewRequest("POST", "/login", nil)
	if err := sm.SaveUser(saveRec, saveReq, auth.SessionUser{ID: uid, Name: "Ann", Email: "a@x.com"}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	cookies := saveRec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("SaveUser set no cookie")
	}

	req := httptest.NewRequest("GET", "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	var seen *auth.SessionUser
	sm.LoadSessionUser(okHandler(&seen)).ServeHTTP(httptest.NewRecorder(), req)

	if seen == nil {
		t.Fatal("expected user loaded from session")
	}
	if seen.ID != uid || seen.Email != "a@x.com" || seen.Via != auth.ViaSession {
		t.Errorf("loaded user = %+v", seen)
	}
}

func TestLoadSessionUser_NoCookie(t *testing.T) {
	sm := newTestSessionManager(t)
	var seen *auth.SessionUser
	sm.LoadSessionUser(okHandler(&seen)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if seen != nil {
		t.Errorf("expected no user, got %+v", seen)
	}
}

func TestCurrentUser_NoUser(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if u, ok := auth.CurrentUser(req); ok || u != nil {
		t.Errorf("expected no user, got %+v", u)
	}
}

func TestParseAPIKey(t *testing.T) {
	id := primitive.NewObjectID()
	tests := []struct {
		name   string
		key    string
		wantOK bool
	}{
		{"valid", id.Hex() + ".s3cret", true},
		{"no dot", id.Hex(), false},
		{"empty secret", id.Hex() + ".", false},
		{"bad id", "nothex.s3cret", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID, secret, ok := auth.ParseAPIKey(tt.key)
			if ok != tt.wantOK {
				t.Fatalf("ParseAPIKey(%q) ok = %v, want %v", tt.key, ok, tt.wantOK)
			}
			if ok && (gotID != id || secret != "s3cret") {
				t.Errorf("ParseAPIKey(%q) = %s, %q", tt.key, gotID.Hex(), secret)
			}
		})
	}
}

type fakeVerifier struct {
	admin  models.Admin
	secret string
}

func (f fakeVerifier) VerifyKey(ctx context.Context, adminID primitive.ObjectID, secret string) (models.Admin, error) {
	if adminID != f.admin.ID || secret != f.secret {
		return models.Admin{}, errors.New("invalid")
	}
	return f.admin, nil
}

func TestLoadAPIKey(t *testing.T) {
	admin := models.Admin{ID: primitive.NewObjectID(), UserID: primitive.NewObjectID(), Email: "root@x.com", Active: true}
	v := fakeVerifier{admin: admin, secret: "good"}
	mw := auth.LoadAPIKey(v, zap.NewNop())

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   bool
	}{
		{"no header passes through", "", http.StatusOK, false},
		{"valid key", "Bearer " + admin.ID.Hex() + ".good", http.StatusOK, true},
		{"wrong secret", "Bearer " + admin.ID.Hex() + ".bad", http.StatusUnauthorized, false},
		{"malformed", "Bearer garbage", http.StatusUnauthorized, false},
		{"other scheme", "Basic abc", http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *auth.SessionUser
			req := httptest.NewRequest("POST", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			mw(okHandler(&seen)).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if (seen != nil) != tt.wantUser {
				t.Fatalf("user present = %v, want %v", seen != nil, tt.wantUser)
			}
			if seen != nil {
				if seen.ID != admin.UserID.Hex() || seen.AdminID != admin.ID.Hex() || seen.Via != auth.ViaAPIKey {
					t.Errorf("user = %+v", seen)
				}
			}
		})
	}
}
