package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"releasecal/internal/config"
	"releasecal/internal/model"
)

// MockSource returns canned releases without touching the network.
type MockSource struct {
	GetFunc func(ctx context.Context) ([]model.ProjectReleases, error)
	calls   int
}

func (m *MockSource) Get(ctx context.Context) ([]model.ProjectReleases, error) {
	m.calls++
	return m.GetFunc(ctx)
}

var sampleReleases = []model.ProjectReleases{
	{
		ProjectName: "Spring Data",
		Releases: []model.Release{
			{Project: "Spring Data", Name: "2021.0.0", Date: "2021-04-14", Status: model.StatusUnknown},
		},
	},
	{
		ProjectName: "Spring Boot",
		Releases:    []model.Release{},
	},
}

func okSource() *MockSource {
	return &MockSource{GetFunc: func(context.Context) ([]model.ProjectReleases, error) {
		return sampleReleases, nil
	}}
}

func TestHandleReleases(t *testing.T) {
	src := okSource()
	h := NewServer(config.DefaultConfig(), src).Handler()

	t.Run("returns all projects", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/releases", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp releasesResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if diff := cmp.Diff(sampleReleases, resp.Projects); diff != "" {
			t.Errorf("projects mismatch (-want +got):\n%s", diff)
		}
		if resp.FetchedAt.IsZero() {
			t.Error("fetched_at should be set")
		}
	})

	t.Run("filters by project", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/releases?project=Spring+Data", nil))

		var resp releasesResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp.Projects) != 1 || resp.Projects[0].ProjectName != "Spring Data" {
			t.Errorf("unexpected filtered projects %+v", resp.Projects)
		}
	})

	t.Run("unknown project", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/releases?project=Nope", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("rejects POST", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/releases", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	if src.calls != 3 {
		t.Errorf("expected a fresh fetch per GET, got %d calls", src.calls)
	}
}

func TestHandleReleases_FetchFailure(t *testing.T) {
	src := &MockSource{GetFunc: func(context.Context) ([]model.ProjectReleases, error) {
		return nil, errors.New("calendar fetch failed")
	}}
	h := NewServer(config.DefaultConfig(), src).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/releases", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] == "" {
		t.Error("expected error message in body")
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	h := NewServer(cfg, okSource()).Handler()

	tests := []struct {
		name     string
		path     string
		user     string
		pass     string
		wantCode int
	}{
		{name: "health is open", path: "/health", wantCode: http.StatusOK},
		{name: "api without credentials", path: "/api/releases", wantCode: http.StatusUnauthorized},
		{name: "api with wrong password", path: "/api/releases", user: "admin", pass: "nope", wantCode: http.StatusUnauthorized},
		{name: "api with credentials", path: "/api/releases", user: "admin", pass: "secret", wantCode: http.StatusOK},
		{name: "metrics with credentials", path: "/metrics", user: "admin", pass: "secret", wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
		})
	}
}
