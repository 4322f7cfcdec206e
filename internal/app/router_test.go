package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quizengine/internal/app/observability"
	"quizengine/internal/auth"
	"quizengine/internal/exam"
	"quizengine/internal/grading"
	"quizengine/internal/question"
	"quizengine/internal/regrade"
	"quizengine/internal/report"
	"quizengine/internal/sandbox"

	"github.com/redis/go-redis/v9"
)

func testRouter(t *testing.T) (http.Handler, *auth.Verifier) {
	t.Helper()
	store := exam.NewMemoryStore()
	bank := question.NewMemoryBank()
	engine := grading.NewEngine(sandbox.NewMemoryQueue())
	verifier := auth.NewVerifier("test-secret", "")

	// Never dialled: the routes exercised here fail before reaching Redis.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = rdb.Close() })

	agg := regrade.NewAggregator(store, bank, engine)
	h := Handlers{
		Auth:    verifier,
		Exam:    exam.NewHandler(exam.NewService(store, bank, engine), nil),
		Regrade: regrade.NewHandler(regrade.NewDispatcher(regrade.NewRedisJobQueue(rdb, time.Hour)), agg, nil),
		Report:  report.NewHandler(report.NewService(store, nil, nil), nil),
		Metrics: observability.NewCollector(nil),
	}
	return NewRouter(Config{RateLimitPerMin: 1000}, h), verifier
}

func TestRouterAccessControl(t *testing.T) {
	router, verifier := testRouter(t)
	token := func(role string) string {
		tok, err := verifier.Issue(auth.User{ID: 7, Username: "u", Role: role}, time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		return tok
	}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{name: "health", method: http.MethodGet, path: "/healthz", want: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", want: http.StatusOK},
		{name: "no token", method: http.MethodGet, path: "/api/v1/attempts/1", want: http.StatusUnauthorized},
		{name: "bad token", method: http.MethodGet, path: "/api/v1/attempts/1", token: "garbage", want: http.StatusUnauthorized},
		{name: "student unknown attempt", method: http.MethodGet, path: "/api/v1/attempts/1", token: token(auth.RoleStudent), want: http.StatusNotFound},
		{name: "student regrade", method: http.MethodGet, path: "/api/v1/regrade/abc", token: token(auth.RoleStudent), want: http.StatusForbidden},
		{name: "teacher unknown job", method: http.MethodGet, path: "/api/v1/regrade/abc", token: token(auth.RoleTeacher), want: http.StatusNotFound},
		{name: "admin summary", method: http.MethodGet, path: "/api/v1/papers/3/summary", token: token(auth.RoleAdmin), want: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(""))
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("%s %s: expected %d, got %d body=%s", tc.method, tc.path, tc.want, w.Code, w.Body.String())
			}
		})
	}
}
