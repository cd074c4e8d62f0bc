package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/learnhub/internal/auth"
	"github.com/hitoshi/learnhub/internal/cooldown"
	"github.com/hitoshi/learnhub/internal/middleware"
	"github.com/hitoshi/learnhub/internal/model"
)

const (
	// verifierCookieName はメール内リンクのコード交換に使うPKCEベリファイアのCookie名。
	verifierCookieName = "auth_verifier"

	// defaultVerifierMaxAge はベリファイアCookieの有効期間（秒）。メール内リンクの有効期限に合わせる。
	defaultVerifierMaxAge = 3600
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, in auth.SignUpInput) (*auth.Result, error)
	ResendVerification(ctx context.Context, action cooldown.Action, email string) (*auth.Result, error)
	Login(ctx context.Context, email, password string) (*auth.Result, error)
	ForgotPassword(ctx context.Context, email string) (*auth.Result, error)
	ResetPassword(ctx context.Context, sessionID, password, confirm string) (*auth.Result, error)
	HandleCallback(ctx context.Context, code, next, codeVerifier string) *auth.Result
	SignOut(ctx context.Context, sessionID string) error
	CurrentSession(ctx context.Context, sessionID string) (*model.Session, error)
	GuardSession(ctx context.Context, session *model.Session) (auth.Decision, error)
	CooldownStatus(ctx context.Context, action cooldown.Action, email string) (cooldown.Status, error)
	CooldownTimer(ctx context.Context, action cooldown.Action, email string) (*cooldown.Timer, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieSecure   bool
	SessionMaxAge  int // セッションCookieの有効期間（秒）
	VerifierMaxAge int // PKCEベリファイアCookieの有効期間（秒）。0以下なら1時間
}

// AuthHandler はサインアップ、ログイン、パスワード再設定とゲート判定のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	if config.VerifierMaxAge <= 0 {
		config.VerifierMaxAge = defaultVerifierMaxAge
	}
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// --- リクエスト/レスポンス型 ---

type signUpRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FullName        string `json:"full_name"`
}

type resendRequest struct {
	Action string `json:"action"`
	Email  string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// authResponse は認証操作の結果。
type authResponse struct {
	State    string           `json:"state"`
	Redirect string           `json:"redirect,omitempty"`
	Message  string           `json:"message,omitempty"`
	Cooldown *cooldown.Status `json:"cooldown,omitempty"`
}

// unverifiedResponse はメール未確認でログインできなかった場合のレスポンス。
// 確認メール再送ボタンのためにlogin_resendのクールダウン状態を含む。
type unverifiedResponse struct {
	middleware.ErrorResponseBody
	Cooldown cooldown.Status `json:"cooldown"`
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

type gateResponse struct {
	Decision string `json:"decision"`
	Redirect string `json:"redirect,omitempty"`
}

// --- ハンドラー ---

// SignUp はアカウントを作成する。
// POST /api/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.SignUp(r.Context(), auth.SignUpInput{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FullName:        req.FullName,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.writeResult(w, http.StatusCreated, res)
}

// Resend は確認メールを再送する。
// POST /api/auth/resend
func (h *AuthHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.ResendVerification(r.Context(), cooldown.Action(req.Action), req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.writeResult(w, http.StatusOK, res)
}

// Login はメールアドレスとパスワードでログインする。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUnverifiedEmail {
			h.writeUnverified(w, r, apiErr, req.Email)
			return
		}
		handleServiceError(w, err)
		return
	}
	h.writeResult(w, http.StatusOK, res)
}

// ForgotPassword はパスワード再設定メールを送信する。
// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.writeResult(w, http.StatusOK, res)
}

// ResetPassword は再設定リンクで確立したセッションのパスワードを変更する。
// 成功後はセッションCookieを削除する。
// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.ResetPassword(r.Context(), middleware.SessionIDFromRequest(r), req.Password, req.ConfirmPassword)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.ClearSessionCookie(w)
	h.writeResult(w, http.StatusOK, res)
}

// Logout はセッションを破棄する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := middleware.SessionIDFromRequest(r); sessionID != "" {
		if err := h.service.SignOut(r.Context(), sessionID); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}
	middleware.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, authResponse{
		State:    string(auth.StateAnonymous),
		Redirect: auth.LoginPath,
	})
}

// Session は現在のセッション情報を返す。未ログインでも200で返す。
// GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	if session == nil {
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		UserID:        session.UserID,
		Email:         session.Email,
		EmailVerified: session.EmailVerifiedAt != nil,
	})
}

// Gate は保護ページに入れるかを判定し、遷移先を返す。
// GET /api/gate
func (h *AuthHandler) Gate(w http.ResponseWriter, r *http.Request) {
	session, ok := h.currentSession(w, r)
	if !ok {
		return
	}
	decision, err := h.service.GuardSession(r.Context(), session)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gateResponse{
		Decision: string(decision),
		Redirect: decision.Redirect(),
	})
}

// Callback はメール内リンクのコードをセッションに交換してリダイレクトする。
// GET /auth/callback?code=xxx&next=/path
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var verifier string
	if cookie, err := r.Cookie(verifierCookieName); err == nil {
		verifier = cookie.Value
	}

	q := r.URL.Query()
	res := h.service.HandleCallback(r.Context(), q.Get("code"), q.Get("next"), verifier)

	h.clearVerifierCookie(w)
	if res.Session != nil {
		middleware.SetSessionCookie(w, res.Session.ID, h.config.SessionMaxAge, h.config.CookieSecure)
	}
	http.Redirect(w, r, res.Redirect, http.StatusSeeOther)
}

// CooldownStatus はアクションとメールアドレスの組のクールダウン状態を返す。
// GET /api/auth/cooldown?action=signup_email&email=a@example.com
func (h *AuthHandler) CooldownStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := h.service.CooldownStatus(r.Context(), cooldown.Action(q.Get("action")), q.Get("email"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// CooldownStream はクールダウンの残り秒数をServer-Sent Eventsで1秒ごとに配信する。
// 最初に現在の状態を送り、0に達するかクライアントが切断すると終了する。
// GET /api/auth/cooldown/stream?action=signup_email&email=a@example.com
func (h *AuthHandler) CooldownStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	timer, err := h.service.CooldownTimer(r.Context(), cooldown.Action(q.Get("action")), q.Get("email"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	// サーバーのWriteTimeoutはクールダウン期間より短いため、ストリームでは解除する
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.Debug("cooldown stream deadline reset failed", slog.String("error", err.Error()))
	}
	send := func(status cooldown.Status) bool {
		if err := writeCooldownEvent(w, status); err != nil {
			return false
		}
		if err := rc.Flush(); err != nil {
			slog.Debug("cooldown stream flush failed", slog.String("error", err.Error()))
		}
		return true
	}

	if !send(timer.Status()) || !timer.IsActive() {
		return
	}
	timer.Run(r.Context(), func(secondsLeft int) {
		send(cooldown.Status{SecondsLeft: secondsLeft, IsActive: secondsLeft > 0})
	})
}

// --- ヘルパー関数 ---

// writeResult は認証操作の結果を書き込む。
// 新しいセッションやPKCEベリファイアがあればCookieに設定する。
func (h *AuthHandler) writeResult(w http.ResponseWriter, statusCode int, res *auth.Result) {
	if res.CodeVerifier != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     verifierCookieName,
			Value:    res.CodeVerifier,
			Path:     auth.CallbackPath,
			MaxAge:   h.config.VerifierMaxAge,
			HttpOnly: true,
			Secure:   h.config.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	if res.Session != nil {
		middleware.SetSessionCookie(w, res.Session.ID, h.config.SessionMaxAge, h.config.CookieSecure)
	}
	writeJSON(w, statusCode, authResponse{
		State:    string(res.State),
		Redirect: res.Redirect,
		Message:  res.Message,
		Cooldown: res.Cooldown,
	})
}

// writeUnverified はメール未確認エラーにlogin_resendのクールダウン状態を添えて書き込む。
func (h *AuthHandler) writeUnverified(w http.ResponseWriter, r *http.Request, apiErr *model.APIError, email string) {
	status, err := h.service.CooldownStatus(r.Context(), cooldown.ActionLoginResend, email)
	if err != nil {
		slog.Warn("failed to read login resend cooldown", slog.String("error", err.Error()))
	}
	writeJSON(w, mapAPIErrorToHTTPStatus(apiErr), unverifiedResponse{
		ErrorResponseBody: middleware.ErrorResponseBody{
			Code:     apiErr.Code,
			Message:  apiErr.Message,
			Category: apiErr.Category,
			Action:   apiErr.Action,
		},
		Cooldown: status,
	})
}

// currentSession はCookieのセッションを取得する。
// Cookieはあるが有効なセッションが無い場合はCookieを削除する。
// エラー時は500を書き込みfalseを返す。
func (h *AuthHandler) currentSession(w http.ResponseWriter, r *http.Request) (*model.Session, bool) {
	sessionID := middleware.SessionIDFromRequest(r)
	session, err := h.service.CurrentSession(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, err)
		return nil, false
	}
	if session == nil && sessionID != "" {
		middleware.ClearSessionCookie(w)
	}
	return session, true
}

func (h *AuthHandler) clearVerifierCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     verifierCookieName,
		Value:    "",
		Path:     auth.CallbackPath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeCooldownEvent はクールダウン状態を1つのSSEイベントとして書き込む。
func writeCooldownEvent(w http.ResponseWriter, status cooldown.Status) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: cooldown\ndata: %s\n\n", data)
	return err
}
