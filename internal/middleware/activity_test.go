package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
)

// captureWriter collects activity rows via a buffered channel.
type captureWriter struct {
	ch  chan *models.UserActivity
	err error
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{ch: make(chan *models.UserActivity, 8)}
}

func (w *captureWriter) RecordActivity(_ context.Context, a *models.UserActivity) error {
	w.ch <- a
	return w.err
}

func (w *captureWriter) waitForEntry(t *testing.T) *models.UserActivity {
	t.Helper()
	select {
	case a := <-w.ch:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for activity row")
		return nil
	}
}

func (w *captureWriter) expectNone(t *testing.T) {
	t.Helper()
	select {
	case a := <-w.ch:
		t.Fatalf("unexpected activity row: %+v", a)
	case <-time.After(100 * time.Millisecond):
	}
}

func newActivityRouter(writer ActivityWriter, opts ActivityOptions, user *models.User, status int) *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(ContextUserKey, user)
			c.Set(ContextUserIDKey, user.ID)
			c.Set(ContextAuthMethodKey, AuthMethodAPIToken)
			c.Set(ContextAPITokenIDKey, int64(9))
		}
	})
	r.Use(ActivityMiddleware(writer, opts))
	handler := func(c *gin.Context) { c.Status(status) }
	r.GET("/api/v1/plants/:uid/view", handler)
	r.PUT("/api/v1/admin/users/:id", handler)
	r.POST("/api/v1/auth/2fa/confirm", handler)
	return r
}

// ---------------------------------------------------------------------------
// ActivityType
// ---------------------------------------------------------------------------

func TestActivityType(t *testing.T) {
	tests := []struct {
		method, route, want string
	}{
		{http.MethodPost, "/api/v1/auth/2fa/confirm", "auth.2fa.confirm"},
		{http.MethodPut, "/api/v1/admin/users/:id", "admin.users.update"},
		{http.MethodPatch, "/api/v1/admin/plant-name-mappings/:uid", "admin.plant-name-mappings.update"},
		{http.MethodGet, "/api/v1/plants/:uid/view", "plants.view"},
		{http.MethodDelete, "/api/v1/auth/2fa", "auth.2fa.delete"},
		{http.MethodGet, "", "unknown"},
		{http.MethodGet, "/health", "health"},
	}
	for _, tt := range tests {
		if got := ActivityType(tt.method, tt.route); got != tt.want {
			t.Errorf("ActivityType(%s, %q) = %q, want %q", tt.method, tt.route, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// ActivityMiddleware
// ---------------------------------------------------------------------------

func TestActivityMiddleware_RecordsAuthenticatedWrite(t *testing.T) {
	w := newCaptureWriter()
	user := &models.User{ID: 3, Role: models.RoleAdmin}
	r := newActivityRouter(w, ActivityOptions{}, user, http.StatusOK)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/users/12", nil)
	req.Header.Set("User-Agent", "ems-test")
	r.ServeHTTP(httptest.NewRecorder(), req)

	a := w.waitForEntry(t)
	if a.UserID == nil || *a.UserID != 3 {
		t.Errorf("UserID = %v, want 3", a.UserID)
	}
	if a.ActivityType != "admin.users.update" {
		t.Errorf("ActivityType = %q", a.ActivityType)
	}
	if a.URL == nil || *a.URL != "/api/v1/admin/users/12" {
		t.Errorf("URL = %v", a.URL)
	}
	if a.StatusCode == nil || *a.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %v", a.StatusCode)
	}
	if a.SessionID == nil || *a.SessionID != "token:9" {
		t.Errorf("SessionID = %v, want token:9", a.SessionID)
	}
	if a.UserAgent == nil || *a.UserAgent != "ems-test" {
		t.Errorf("UserAgent = %v", a.UserAgent)
	}

	var props map[string]string
	if a.Properties == nil {
		t.Fatal("Properties is nil")
	}
	if err := json.Unmarshal(*a.Properties, &props); err != nil {
		t.Fatalf("properties: %v", err)
	}
	if props["auth_method"] != AuthMethodAPIToken {
		t.Errorf("auth_method = %q", props["auth_method"])
	}
	if props["request_id"] == "" {
		t.Error("request_id missing from properties")
	}
}

func TestActivityMiddleware_SkipsReadsByDefault(t *testing.T) {
	w := newCaptureWriter()
	r := newActivityRouter(w, ActivityOptions{}, &models.User{ID: 1}, http.StatusOK)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/plants/abc/view", nil))
	w.expectNone(t)
}

func TestActivityMiddleware_RecordsReadsWhenEnabled(t *testing.T) {
	w := newCaptureWriter()
	r := newActivityRouter(w, ActivityOptions{LogReadOperations: true}, &models.User{ID: 1}, http.StatusOK)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/plants/abc/view", nil))

	if a := w.waitForEntry(t); a.ActivityType != "plants.view" {
		t.Errorf("ActivityType = %q, want plants.view", a.ActivityType)
	}
}

func TestActivityMiddleware_SkipsAnonymous(t *testing.T) {
	w := newCaptureWriter()
	r := newActivityRouter(w, ActivityOptions{}, nil, http.StatusOK)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/auth/2fa/confirm", nil))
	w.expectNone(t)
}

func TestActivityMiddleware_SkipsFailedRequests(t *testing.T) {
	w := newCaptureWriter()
	r := newActivityRouter(w, ActivityOptions{}, &models.User{ID: 1}, http.StatusUnprocessableEntity)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/auth/2fa/confirm", nil))
	w.expectNone(t)
}

func TestActivityMiddleware_WriterErrorDoesNotAffectResponse(t *testing.T) {
	w := newCaptureWriter()
	w.err = errors.New("insert failed")
	r := newActivityRouter(w, ActivityOptions{}, &models.User{ID: 1}, http.StatusOK)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/2fa/confirm", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	w.waitForEntry(t)
}
