package cli_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/cli"
)

type call struct {
	method, path, auth string
	body               map[string]any
}

func fakeServer(t *testing.T, status int, resp string) (*httptest.Server, *[]call) {
	t.Helper()
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := call{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		_ = json.NewDecoder(r.Body).Decode(&c.body)
		calls = append(calls, c)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var out bytes.Buffer
	cmd := cli.NewRootCommand(&out)
	cmd.SetArgs(args)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands_Requests(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantMethod string
		wantPath   string
		wantBody   map[string]any
	}{
		{"approve project", []string{"approve", "project", "p1"}, http.MethodPost, "/api/admin/projects/p1/approve", nil},
		{"approve application", []string{"approve", "application", "a1"}, http.MethodPost, "/api/admin/applications/a1/approve", nil},
		{"reject event", []string{"reject", "event", "e1", "--reason", "duplicate"}, http.MethodPost, "/api/admin/events/e1/reject", map[string]any{"reason": "duplicate"}},
		{"delete with yes", []string{"delete", "group", "g1", "--yes"}, http.MethodDelete, "/api/admin/groups/g1", map[string]any{"confirm": true, "confirmationPhrase": "DELETE GROUP"}},
		{"delete post with phrase", []string{"delete", "post", "x1", "--phrase", "DELETE"}, http.MethodDelete, "/api/admin/posts/x1", map[string]any{"confirm": true, "confirmationPhrase": "DELETE"}},
		{"end company", []string{"end-company", "c1"}, http.MethodPost, "/api/admin/companies/c1/end", nil},
		{"reconcile", []string{"reconcile"}, http.MethodPost, "/api/admin/reconcile", nil},
		{"audit", []string{"audit", "--category", "admin"}, http.MethodGet, "/api/audit", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := fakeServer(t, http.StatusOK, `{}`)
			args := append(tt.args, "--server", srv.URL, "--api-key", "id.secret")
			if _, err := run(t, args...); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if len(*calls) != 1 {
				t.Fatalf("calls = %d, want 1", len(*calls))
			}
			got := (*calls)[0]
			if got.method != tt.wantMethod || got.path != tt.wantPath {
				t.Errorf("request = %s %s, want %s %s", got.method, got.path, tt.wantMethod, tt.wantPath)
			}
			if got.auth != "Bearer id.secret" {
				t.Errorf("Authorization = %q", got.auth)
			}
			for k, want := range tt.wantBody {
				if got.body[k] != want {
					t.Errorf("body[%s] = %v, want %v", k, got.body[k], want)
				}
			}
		})
	}
}

func TestCommands_LocalErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown transition kind", []string{"approve", "group", "g1"}, "unknown kind"},
		{"reject without reason", []string{"reject", "project", "p1"}, "reason"},
		{"delete without confirmation", []string{"delete", "company", "c1"}, "DELETE COMPANY"},
		{"unknown delete kind", []string{"delete", "user", "u1", "--yes"}, "unknown kind"},
		{"wrong arg count", []string{"approve", "project"}, "accepts 2 arg"},
		{"missing api key", []string{"reconcile"}, "APIKey is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := fakeServer(t, http.StatusOK, `{}`)
			_, err := run(t, append(tt.args, "--server", srv.URL)...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
			if len(*calls) != 0 {
				t.Errorf("calls = %d, want none", len(*calls))
			}
		})
	}
}

func TestCommands_ServerError(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusConflict, `{"error":"project already approved","code":"conflict"}`)
	_, err := run(t, "approve", "project", "p1", "--server", srv.URL, "--api-key", "k")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("error = %v, want ErrConflict", err)
	}
}

func TestCommands_PartialDeletePrintsReceipt(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusMultiStatus,
		`{"error":"cascade incomplete","code":"partial_cascade","receipt":{"id":"r9","root":"group","root_id":"g1","errors":["x"]}}`)
	out, err := run(t, "delete", "group", "g1", "--yes", "--server", srv.URL, "--api-key", "k")
	if !errors.Is(err, apperr.ErrPartialCascade) {
		t.Errorf("error = %v, want ErrPartialCascade", err)
	}
	if !strings.Contains(out, `"id": "r9"`) {
		t.Errorf("output = %q, want the receipt", out)
	}
}

func TestConfig_Sources(t *testing.T) {
	t.Run("environment", func(t *testing.T) {
		srv, calls := fakeServer(t, http.StatusOK, `{"checked":3}`)
		t.Setenv("COLLABCTL_SERVER", srv.URL)
		t.Setenv("COLLABCTL_API_KEY", "env.key")
		out, err := run(t, "reconcile")
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if (*calls)[0].auth != "Bearer env.key" {
			t.Errorf("Authorization = %q", (*calls)[0].auth)
		}
		if !strings.Contains(out, `"checked": 3`) {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("config file", func(t *testing.T) {
		srv, calls := fakeServer(t, http.StatusOK, `{}`)
		path := filepath.Join(t.TempDir(), "ctl.yaml")
		content := "server: " + srv.URL + "\napi_key: file.key\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := run(t, "reconcile", "--config", path); err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if (*calls)[0].auth != "Bearer file.key" {
			t.Errorf("Authorization = %q", (*calls)[0].auth)
		}
	})

	t.Run("missing explicit config", func(t *testing.T) {
		_, err := run(t, "reconcile", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
		if err == nil {
			t.Error("a missing --config file should fail")
		}
	})
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out, "collabctl v") {
		t.Errorf("output = %q", out)
	}
}
