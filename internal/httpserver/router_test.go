package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"jobmail/internal/model"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type staticLister map[string][]*model.JobApplication

func (s staticLister) ListByUser(_ context.Context, userID string) ([]*model.JobApplication, error) {
	return s[userID], nil
}

func serve(r *Router, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestReadyz(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("refused") })

	tests := []struct {
		name string
		deps map[string]Pinger
		want int
	}{
		{"all up", map[string]Pinger{"db": ok, "redis": ok}, http.StatusOK},
		{"redis down", map[string]Pinger{"db": ok, "redis": down}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(zap.NewNop(), staticLister{}, tt.deps)
			if w := serve(r, http.MethodGet, "/readyz"); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestApplicationsEndpoint(t *testing.T) {
	r := NewRouter(zap.NewNop(), staticLister{
		"u1": {{ID: 1, UserID: "u1", Company: "Acme Corp", Status: model.StatusApplied}},
	}, nil)

	w := serve(r, http.MethodGet, "/users/u1/applications")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Applications []model.JobApplication `json:"applications"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Applications) != 1 || body.Applications[0].Company != "Acme Corp" {
		t.Errorf("body = %s", w.Body.String())
	}

	if w := serve(r, http.MethodGet, "/users/nobody/applications"); w.Body.String() != `{"applications":[]}` {
		t.Errorf("empty user body = %s", w.Body.String())
	}
	if w := serve(r, http.MethodGet, "/healthz"); w.Code != http.StatusOK {
		t.Errorf("healthz = %d", w.Code)
	}
}
