package mailer_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/mailer"
	"go.uber.org/zap"
)

func projectPayload() mailer.Payload {
	return mailer.Payload{ProjectData: &mailer.ProjectData{
		ProjectID:    "p1",
		Title:        "Widget",
		ContactName:  "Ann",
		ContactEmail: "a@x.com",
	}}
}

func TestPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		key     mailer.EndpointKey
		payload mailer.Payload
		wantErr bool
	}{
		{"project ok", mailer.SendProjectApproved, projectPayload(), false},
		{"event ok", mailer.SendEventRejected, mailer.Payload{EventData: &mailer.EventData{}}, false},
		{"completion ok", mailer.SendProjectReviewApproved, mailer.Payload{CompletionData: &mailer.CompletionData{}}, false},
		{"application ok", mailer.SendApplicationRejected, mailer.Payload{ApplicationData: &mailer.ApplicationData{}}, false},
		{"wrong shape", mailer.SendEventPublished, projectPayload(), true},
		{"no shape", mailer.SendProjectApproved, mailer.Payload{}, true},
		{"two shapes", mailer.SendProjectApproved, mailer.Payload{
			ProjectData: &mailer.ProjectData{},
			EventData:   &mailer.EventData{},
		}, true},
		{"unknown endpoint", "send-nothing", projectPayload(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%s) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestHTTPDispatcher_Success(t *testing.T) {
	var gotPath string
	var gotBody map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"results":[{"id":"m1"}]}`))
	}))
	defer srv.Close()

	d := mailer.NewHTTPDispatcher(mailer.Config{BaseURL: srv.URL + "/"}, zap.NewNop())
	if err := d.Dispatch(context.Background(), mailer.SendProjectApproved, projectPayload()); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if gotPath != "/api/notifications/send-project-approved" {
		t.Errorf("path = %q", gotPath)
	}
	if _, ok := gotBody["projectData"]; !ok {
		t.Errorf("body missing projectData: %v", gotBody)
	}
	if len(gotBody) != 1 {
		t.Errorf("body should carry one shape, got %d keys", len(gotBody))
	}
}

func TestHTTPDispatcher_RetriesOnceOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	d := mailer.NewHTTPDispatcher(mailer.Config{BaseURL: srv.URL, RetryDelay: time.Millisecond}, zap.NewNop())
	if err := d.Dispatch(context.Background(), mailer.SendProjectApproved, projectPayload()); err != nil {
		t.Fatalf("Dispatch failed after retry: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestHTTPDispatcher_GivesUpAfterOneRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := mailer.NewHTTPDispatcher(mailer.Config{BaseURL: srv.URL, RetryDelay: time.Millisecond}, zap.NewNop())
	err := d.Dispatch(context.Background(), mailer.SendProjectApproved, projectPayload())
	if !errors.Is(err, apperr.ErrDownstreamUnavailable) {
		t.Fatalf("error = %v, want DownstreamUnavailable", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestHTTPDispatcher_ServiceReportsFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"success":false,"error":"template missing"}`))
	}))
	defer srv.Close()

	d := mailer.NewHTTPDispatcher(mailer.Config{BaseURL: srv.URL}, zap.NewNop())
	err := d.Dispatch(context.Background(), mailer.SendProjectApproved, projectPayload())
	if !errors.Is(err, apperr.ErrDownstreamUnavailable) {
		t.Fatalf("error = %v, want DownstreamUnavailable", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("a definitive failure should not be retried, calls = %d", n)
	}
}

func TestHTTPDispatcher_RejectsMismatchedPayload(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	d := mailer.NewHTTPDispatcher(mailer.Config{BaseURL: srv.URL}, zap.NewNop())
	if err := d.Dispatch(context.Background(), mailer.SendEventPublished, projectPayload()); err == nil {
		t.Fatal("expected validation error")
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("mismatched payload should not be sent")
	}
}

func TestLogDispatcher(t *testing.T) {
	d := mailer.LogDispatcher{Log: zap.NewNop()}
	if err := d.Dispatch(context.Background(), mailer.SendProjectRejected, projectPayload()); err != nil {
		t.Errorf("LogDispatcher.Dispatch: %v", err)
	}
	if err := d.Dispatch(context.Background(), mailer.SendProjectRejected, mailer.Payload{}); err == nil {
		t.Error("LogDispatcher should validate payloads")
	}
}
