package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/learnhub/internal/auth"
	"github.com/hitoshi/learnhub/internal/cooldown"
	"github.com/hitoshi/learnhub/internal/identity"
	"github.com/hitoshi/learnhub/internal/middleware"
	"github.com/hitoshi/learnhub/internal/model"
	"github.com/hitoshi/learnhub/internal/profile"
)

// --- 統合テスト用のステートフルモック ---

// fakeIdP はメールアドレスごとの確認状態と、発行済みの認可コードを保持するIdP。
type fakeIdP struct {
	mu        sync.Mutex
	users     map[string]model.IdentityUser // email -> user
	passwords map[string]string
	codes     map[string]string // code -> email
}

func newFakeIdP() *fakeIdP {
	return &fakeIdP{
		users:     make(map[string]model.IdentityUser),
		passwords: make(map[string]string),
		codes:     make(map[string]string),
	}
}

func (f *fakeIdP) session(u model.IdentityUser) *identity.Session {
	return &identity.Session{
		AccessToken:  "access-" + u.ID,
		RefreshToken: "refresh-" + u.ID,
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         u,
	}
}

// confirm はメール内リンクのクリックを模擬し、ユーザーを確認済みにして認可コードを返す。
func (f *fakeIdP) confirm(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[email]
	now := time.Now()
	u.EmailConfirmedAt = &now
	f.users[email] = u
	code := "code-" + u.ID
	f.codes[code] = email
	return code
}

func (f *fakeIdP) SignUp(_ context.Context, p identity.SignUpParams) (*identity.SignUpResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[p.Email]; ok {
		return nil, &identity.Error{Kind: identity.KindDuplicateAccount}
	}
	u := model.IdentityUser{ID: "user-" + strings.Split(p.Email, "@")[0], Email: p.Email, FullName: p.FullName}
	f.users[p.Email] = u
	f.passwords[p.Email] = p.Password
	return &identity.SignUpResult{User: u}, nil
}

func (f *fakeIdP) SignInWithPassword(_ context.Context, email, password string) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok || f.passwords[email] != password {
		return nil, &identity.Error{Kind: identity.KindInvalidCredentials}
	}
	return f.session(u), nil
}

func (f *fakeIdP) Resend(context.Context, identity.ResendParams) error { return nil }

func (f *fakeIdP) ResetPasswordForEmail(context.Context, identity.RecoverParams) error { return nil }

func (f *fakeIdP) UpdatePassword(context.Context, string, string) (*model.IdentityUser, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeIdP) ExchangeCodeForSession(_ context.Context, code, _ string) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email, ok := f.codes[code]
	if !ok {
		return nil, &identity.Error{Kind: identity.KindExpiredOrInvalidToken}
	}
	delete(f.codes, code)
	return f.session(f.users[email]), nil
}

func (f *fakeIdP) RefreshSession(context.Context, string) (*identity.Session, error) {
	return nil, &identity.Error{Kind: identity.KindExpiredOrInvalidToken}
}

func (f *fakeIdP) GetUser(context.Context, string) (*model.IdentityUser, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeIdP) SignOut(context.Context, string) error { return nil }

// memoryProfiles はメモリ上のProfileRepository。
type memoryProfiles struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
}

func (m *memoryProfiles) FindByID(_ context.Context, id string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memoryProfiles) ExistsByEmail(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if strings.EqualFold(p.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryProfiles) CreateIfNotExists(_ context.Context, p *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ID]; !ok {
		cp := *p
		m.profiles[p.ID] = &cp
	}
	return nil
}

func (m *memoryProfiles) Update(_ context.Context, id string, u model.ProfileUpdate) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, nil
	}
	if u.FullName != nil {
		p.FullName = *u.FullName
	}
	if u.DateOfBirth != nil {
		p.DateOfBirth = u.DateOfBirth
	}
	cp := *p
	return &cp, nil
}

// memorySessions はメモリ上のSessionRepository。
type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func (m *memorySessions) Create(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memorySessions) FindByID(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memorySessions) UpdateTokens(ctx context.Context, s *model.Session) error {
	return m.Create(ctx, s)
}

func (m *memorySessions) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memorySessions) DeleteByUserID(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memorySessions) DeleteExpired(context.Context) (int64, error) { return 0, nil }

// --- 統合テスト用ルーター構築ヘルパー ---

type integrationEnv struct {
	router   http.Handler
	idp      *fakeIdP
	profiles *memoryProfiles
}

func newIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	idp := newFakeIdP()
	profiles := &memoryProfiles{profiles: make(map[string]*model.Profile)}
	sessions := &memorySessions{sessions: make(map[string]*model.Session)}

	profileService := profile.NewService(profiles, 0)
	authService := auth.NewService(auth.ServiceDeps{
		Provider:    idp,
		Profiles:    profileService,
		Accounts:    profiles,
		SessionRepo: sessions,
		Cooldowns:   cooldown.NewManager(cooldown.NewMemoryStore(), 60, cooldown.WithLogger(logger)),
	}, auth.ServiceConfig{
		BaseURL:       "http://localhost:8080",
		SessionMaxAge: 86400,
	})

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	router := NewRouter(&RouterDeps{
		Logger:            logger,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		AuthService:       authService,
		AuthConfig:        AuthHandlerConfig{SessionMaxAge: 86400},
		ProfileService:    profileService,
		ProfileCompleter:  authService,
		Catalog:           newStubCatalog(),
		Reading:           &mockReadingLister{},
	})
	return &integrationEnv{router: router, idp: idp, profiles: profiles}
}

func (e *integrationEnv) post(target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := withCSRF(jsonRequest(http.MethodPost, target, body))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return serve(e.router, req)
}

func (e *integrationEnv) get(target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return serve(e.router, req)
}

// --- 統合テスト ---

// サインアップすると成功メッセージを返し、確認メールの再送は60秒間できない。
func TestIntegration_SignUpStartsResendCooldown(t *testing.T) {
	env := newIntegrationEnv(t)

	w := env.post("/api/auth/signup", `{"email":"a@test.com","password":"secret1","confirm_password":"secret1","full_name":"Ann"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody[authResponse](t, w.Result())
	if body.State != string(auth.StatePendingVerification) {
		t.Errorf("state = %q", body.State)
	}
	if body.Cooldown == nil || body.Cooldown.SecondsLeft != 60 || !body.Cooldown.IsActive {
		t.Errorf("cooldown = %+v, want 60s active", body.Cooldown)
	}
	if findCookie(w.Result(), verifierCookieName) == nil {
		t.Error("expected PKCE verifier cookie")
	}

	// 再読み込み後もクールダウンが残っている（メールアドレスは正規化して照合）
	w = env.get("/api/auth/cooldown?action=signup_email&email=%20A@Test.com%20")
	status := decodeBody[cooldown.Status](t, w.Result())
	if !status.IsActive || status.SecondsLeft < 59 {
		t.Errorf("status after reload = %+v", status)
	}

	w = env.post("/api/auth/resend", `{"action":"signup_email","email":"a@test.com"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("resend during cooldown status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

// メール未確認のユーザーはログインできず、再送ボタンは有効（クールダウン無し）。
func TestIntegration_LoginUnverifiedEmail(t *testing.T) {
	env := newIntegrationEnv(t)
	env.post("/api/auth/signup", `{"email":"b@test.com","password":"secret1","confirm_password":"secret1","full_name":"Bao"}`)

	w := env.post("/api/auth/login", `{"email":"b@test.com","password":"secret1"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("login status = %d, want %d (body %s)", w.Code, http.StatusForbidden, w.Body.String())
	}
	body := decodeBody[unverifiedResponse](t, w.Result())
	if body.Message != "Email chưa được xác nhận. Vui lòng kiểm tra email của bạn." {
		t.Errorf("message = %q", body.Message)
	}
	if body.Cooldown.IsActive {
		t.Errorf("login_resend cooldown should be idle, got %+v", body.Cooldown)
	}
	if findCookie(w.Result(), middleware.SessionCookieName) != nil {
		t.Error("unverified login must not set a session cookie")
	}

	w = env.post("/api/auth/resend", `{"action":"login_resend","email":"b@test.com"}`)
	if w.Code != http.StatusOK {
		t.Errorf("resend status = %d, want %d", w.Code, http.StatusOK)
	}
}

// 生年月日の無いユーザーのコールバックは、要求されたページではなくプロフィール完了画面へ遷移する。
// プロフィールを完了すると保護ページに入れる。
func TestIntegration_CallbackIncompleteProfileThenComplete(t *testing.T) {
	env := newIntegrationEnv(t)
	env.post("/api/auth/signup", `{"email":"c@test.com","password":"secret1","confirm_password":"secret1","full_name":"Chi"}`)
	code := env.idp.confirm("c@test.com")

	w := env.get("/auth/callback?code=" + code + "&next=%2Fresources%2Fjpd316")
	if w.Code != http.StatusSeeOther {
		t.Fatalf("callback status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != auth.CompleteProfilePath {
		t.Fatalf("Location = %q, want %q", loc, auth.CompleteProfilePath)
	}
	session := findCookie(w.Result(), middleware.SessionCookieName)
	if session == nil {
		t.Fatal("callback should set a session cookie")
	}

	// サインアップ時の氏名がプロフィールに複製される
	p, _ := env.profiles.FindByID(context.Background(), "user-c")
	if p == nil || p.FullName != "Chi" || p.DateOfBirth != nil {
		t.Fatalf("profile after callback = %+v", p)
	}

	w = env.get("/api/resources/jpd316", session)
	if w.Code != http.StatusForbidden {
		t.Fatalf("gated status before completion = %d, want %d", w.Code, http.StatusForbidden)
	}
	gate := decodeBody[middleware.ErrorResponseBody](t, w.Result())
	if gate.Redirect != auth.CompleteProfilePath {
		t.Errorf("gate redirect = %q", gate.Redirect)
	}

	w = env.post("/api/profile/complete", `{"full_name":"Chi","date_of_birth":"2000-05-15"}`, session)
	if w.Code != http.StatusOK {
		t.Fatalf("complete status = %d, body %s", w.Code, w.Body.String())
	}
	done := decodeBody[authResponse](t, w.Result())
	if done.State != string(auth.StateComplete) || done.Redirect != auth.HomePath {
		t.Errorf("complete response = %+v", done)
	}

	w = env.get("/api/resources/jpd316", session)
	if w.Code != http.StatusOK {
		t.Errorf("gated status after completion = %d, want %d", w.Code, http.StatusOK)
	}

	w = env.get("/api/profile/complete", session)
	st := decodeBody[completionStatusResponse](t, w.Result())
	if !st.Complete || st.Redirect != auth.HomePath {
		t.Errorf("completion status = %+v", st)
	}
}

// 13歳未満の生年月日ではプロフィールを完了できない。
func TestIntegration_CompleteProfileUnderage(t *testing.T) {
	env := newIntegrationEnv(t)
	env.post("/api/auth/signup", `{"email":"d@test.com","password":"secret1","confirm_password":"secret1","full_name":"Dung"}`)
	code := env.idp.confirm("d@test.com")
	session := findCookie(env.get("/auth/callback?code="+code).Result(), middleware.SessionCookieName)

	underage := time.Now().AddDate(-12, 0, 0).Format("2006-01-02")
	w := env.post("/api/profile/complete", `{"full_name":"Dung","date_of_birth":"`+underage+`"}`, session)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	body := decodeBody[middleware.ErrorResponseBody](t, w.Result())
	if body.Fields["date_of_birth"] != "Bạn phải từ 13 tuổi trở lên" {
		t.Errorf("fields = %v", body.Fields)
	}
}

// 未登録のメールアドレスでパスワード再設定を要求するとインラインエラーを返す。
func TestIntegration_ForgotPasswordUnregisteredEmail(t *testing.T) {
	env := newIntegrationEnv(t)

	w := env.post("/api/auth/forgot-password", `{"email":"nobody@test.com"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	body := decodeBody[middleware.ErrorResponseBody](t, w.Result())
	if body.Message != "Email này chưa được đăng ký trong hệ thống." {
		t.Errorf("message = %q", body.Message)
	}
}

// メール確認前のアカウントも登録済みとして扱う。パスワード再設定メールを送信でき、
// 誤ったパスワードでのログインは未登録ではなく認証情報エラーになる。
func TestIntegration_UnverifiedAccountIsRegistered(t *testing.T) {
	env := newIntegrationEnv(t)
	w := env.post("/api/auth/signup", `{"email":"c@test.com","password":"secret1","confirm_password":"secret1","full_name":"Chi"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %s", w.Code, w.Body.String())
	}

	p, _ := env.profiles.FindByID(context.Background(), "user-c")
	if p == nil || p.FullName != "Chi" || p.DateOfBirth != nil {
		t.Fatalf("profile after signup = %+v, want row with full_name only", p)
	}

	w = env.post("/api/auth/forgot-password", `{"email":"c@test.com"}`)
	if w.Code != http.StatusOK {
		t.Errorf("forgot-password status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}

	w = env.post("/api/auth/login", `{"email":"c@test.com","password":"wrong-pass"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("login status = %d, want %d (body %s)", w.Code, http.StatusUnauthorized, w.Body.String())
	}
	body := decodeBody[middleware.ErrorResponseBody](t, w.Result())
	if body.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidCredentials)
	}
}

// 無効なコードのコールバックはエラー付きのログイン画面へ遷移する。
func TestIntegration_CallbackInvalidCode(t *testing.T) {
	env := newIntegrationEnv(t)

	w := env.get("/auth/callback?code=bogus")
	if loc := w.Header().Get("Location"); loc != "/auth/login?error=callback_error" {
		t.Errorf("Location = %q", loc)
	}
	if findCookie(w.Result(), middleware.SessionCookieName) != nil {
		t.Error("failed callback must not set a session cookie")
	}
}

// ログアウト後はセッションが無効になる。
func TestIntegration_LogoutInvalidatesSession(t *testing.T) {
	env := newIntegrationEnv(t)
	env.post("/api/auth/signup", `{"email":"e@test.com","password":"secret1","confirm_password":"secret1","full_name":"Em"}`)
	env.idp.confirm("e@test.com")

	w := env.post("/api/auth/login", `{"email":"e@test.com","password":"secret1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}
	login := decodeBody[authResponse](t, w.Result())
	if login.Redirect != auth.CompleteProfilePath {
		t.Errorf("login redirect = %q, want %q", login.Redirect, auth.CompleteProfilePath)
	}
	session := findCookie(w.Result(), middleware.SessionCookieName)

	w = env.get("/api/profile", session)
	if w.Code != http.StatusOK {
		t.Fatalf("profile status = %d", w.Code)
	}

	env.post("/api/auth/logout", `{}`, session)

	w = env.get("/api/profile", session)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("profile after logout status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
