package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/learnhub/internal/auth"
	"github.com/hitoshi/learnhub/internal/metrics"
	"github.com/hitoshi/learnhub/internal/middleware"
	"github.com/hitoshi/learnhub/internal/model"
	"github.com/hitoshi/learnhub/internal/profile"
)

const testCSRFToken = "csrf-test-token"

type stubHealthChecker struct{ err error }

func (s stubHealthChecker) PingContext(ctx context.Context) error { return s.err }

// createTestRouter はテスト用の完全なルーターを構築するヘルパー。
// "complete-session"はプロフィール完了済み、"incomplete-session"は未完了のユーザー。
func createTestRouter(t *testing.T) http.Handler {
	t.Helper()

	sessions := map[string]*model.Session{
		"complete-session":   {ID: "complete-session", UserID: "user-complete"},
		"incomplete-session": {ID: "incomplete-session", UserID: "user-incomplete"},
	}

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg)

	deps := &RouterDeps{
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		HealthChecker:     stubHealthChecker{},
		MetricsGatherer:   reg,
		AuthService: &mockAuthService{
			currentSessionFn: func(ctx context.Context, sessionID string) (*model.Session, error) {
				return sessions[sessionID], nil
			},
			guardSessionFn: func(ctx context.Context, session *model.Session) (auth.Decision, error) {
				switch {
				case session == nil:
					return auth.DecisionLogin, nil
				case session.UserID == "user-incomplete":
					return auth.DecisionCompleteProfile, nil
				default:
					return auth.DecisionAllow, nil
				}
			},
		},
		AuthConfig: AuthHandlerConfig{SessionMaxAge: 86400},
		ProfileService: &mockProfileService{
			getFn: func(ctx context.Context, userID string) (*model.Profile, error) {
				return &model.Profile{ID: userID, FullName: "Ann"}, nil
			},
			completionStatusFn: func(ctx context.Context, userID string) (*profile.CompletionStatus, error) {
				return &profile.CompletionStatus{}, nil
			},
		},
		ProfileCompleter: &mockProfileCompleter{},
		Catalog:          newStubCatalog(),
		Reading:          &mockReadingLister{},
	}
	return NewRouter(deps)
}

func withSession(req *http.Request, sessionID string) *http.Request {
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID})
	return req
}

func withCSRF(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	req.Header.Set("X-CSRF-Token", testCSRFToken)
	return req
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// --- テスト ---

func TestNewRouter_PublicRoutes(t *testing.T) {
	router := createTestRouter(t)

	tests := []struct {
		name   string
		target string
	}{
		{"ヘルスチェック", "/health"},
		{"CSRFトークン", "/api/csrf-token"},
		{"メトリクス", "/metrics"},
		{"コース一覧", "/api/courses"},
		{"リソース一覧", "/api/resources"},
		{"セッション", "/api/auth/session"},
		{"ゲート", "/api/gate"},
		{"クールダウン", "/api/auth/cooldown?action=signup_email&email=a@test.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if w.Code != http.StatusOK {
				t.Errorf("GET %s status = %d, want %d", tt.target, w.Code, http.StatusOK)
			}
		})
	}
}

func TestNewRouter_CSRFTokenEndpoint(t *testing.T) {
	router := createTestRouter(t)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	var body map[string]string
	json.NewDecoder(w.Result().Body).Decode(&body)
	if body["token"] == "" {
		t.Error("expected non-empty CSRF token")
	}
}

func TestNewRouter_HealthUnavailable(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer rl.Stop()
	router := NewRouter(&RouterDeps{
		RateLimiter:   rl,
		HealthChecker: stubHealthChecker{err: errors.New("connection refused")},
		AuthService:   &mockAuthService{},
	})

	w := serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestNewRouter_MetricsDisabledWithoutGatherer(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer rl.Stop()
	router := NewRouter(&RouterDeps{RateLimiter: rl, AuthService: &mockAuthService{}})

	w := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestNewRouter_AuthPostRequiresCSRF(t *testing.T) {
	router := createTestRouter(t)
	body := `{"email":"a@test.com","password":"secret1","confirm_password":"secret1","full_name":"Ann"}`

	w := serve(router, jsonRequest(http.MethodPost, "/api/auth/signup", body))
	if w.Code != http.StatusForbidden {
		t.Errorf("without CSRF status = %d, want %d", w.Code, http.StatusForbidden)
	}

	w = serve(router, withCSRF(jsonRequest(http.MethodPost, "/api/auth/signup", body)))
	if w.Code != http.StatusCreated {
		t.Errorf("with CSRF status = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestNewRouter_SessionRequiredRoutes(t *testing.T) {
	router := createTestRouter(t)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/profile without session status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	// プロフィール画面は未完了のユーザーでも利用できる
	w = serve(router, withSession(httptest.NewRequest(http.MethodGet, "/api/profile/complete", nil), "incomplete-session"))
	if w.Code != http.StatusOK {
		t.Errorf("GET /api/profile/complete status = %d, want %d", w.Code, http.StatusOK)
	}

	w = serve(router, withCSRF(withSession(jsonRequest(http.MethodPut, "/api/profile", `{"full_name":"Ann"}`), "incomplete-session")))
	if w.Code != http.StatusOK {
		t.Errorf("PUT /api/profile status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestNewRouter_GatedRoutes(t *testing.T) {
	router := createTestRouter(t)

	tests := []struct {
		name         string
		sessionID    string
		wantStatus   int
		wantCode     string
		wantRedirect string
	}{
		{"未ログイン", "", http.StatusUnauthorized, model.ErrCodeUnauthorized, ""},
		{"プロフィール未完了", "incomplete-session", http.StatusForbidden, model.ErrCodeProfileIncomplete, auth.CompleteProfilePath},
		{"完了済み", "complete-session", http.StatusOK, "", ""},
	}

	for _, tt := range tests {
		for _, target := range []string{"/api/resources/jpd316", "/api/resources/jpd316/vocabulary", "/api/resources/jpd316/grammar", "/api/resources/reading"} {
			t.Run(tt.name+" "+target, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodGet, target, nil)
				if tt.sessionID != "" {
					withSession(req, tt.sessionID)
				}
				w := serve(router, req)

				if w.Code != tt.wantStatus {
					t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
				}
				if tt.wantCode == "" {
					return
				}
				body := decodeBody[middleware.ErrorResponseBody](t, w.Result())
				if body.Code != tt.wantCode || body.Redirect != tt.wantRedirect {
					t.Errorf("body = %+v", body)
				}
			})
		}
	}
}

func TestNewRouter_CallbackRoute(t *testing.T) {
	router := createTestRouter(t)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/auth/callback", nil))
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != auth.LoginPath {
		t.Errorf("Location = %q, want %q", loc, auth.LoginPath)
	}
}

func TestNewRouter_SecurityHeadersAndRequestID(t *testing.T) {
	router := createTestRouter(t)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/api/courses", nil))
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff header")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestNewRouter_CORSPreflight(t *testing.T) {
	router := createTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := serve(router, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "X-CSRF-Token") {
		t.Errorf("Access-Control-Allow-Headers = %q", w.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestNewRouter_UnknownRoute(t *testing.T) {
	router := createTestRouter(t)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
