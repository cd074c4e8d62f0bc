package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/learnhub/internal/model"
)

// maxResponseSize はIdPレスポンスボディの最大読み取りサイズ（1MB）。
const maxResponseSize = 1 << 20

// ClientConfig はGoTrueクライアントの設定。
type ClientConfig struct {
	BaseURL    string // 例: https://<project>.supabase.co/auth/v1
	AnonKey    string // apikeyヘッダーに設定する公開キー
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client はGoTrue互換の認証REST APIクライアント。
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient はClientを生成する。
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		anonKey:    cfg.AnonKey,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// userResponse はGoTrueのユーザーオブジェクト。
type userResponse struct {
	ID               string          `json:"id"`
	Email            string          `json:"email"`
	EmailConfirmedAt *time.Time      `json:"email_confirmed_at"`
	UserMetadata     map[string]any  `json:"user_metadata"`
	Identities       json.RawMessage `json:"identities"`
}

// sessionResponse はGoTrueのトークンレスポンス。
type sessionResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int           `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	User         *userResponse `json:"user"`
}

// errorResponse はGoTrueのエラーレスポンス。
// バージョンによりmsg/message/error_descriptionのいずれかにメッセージが入る。
type errorResponse struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e errorResponse) code() string {
	if e.ErrorCode != "" {
		return e.ErrorCode
	}
	// OAuth形式のレスポンスではerrorにコードが入る
	if e.ErrorDescription != "" {
		return e.Error
	}
	return ""
}

func (e errorResponse) message() string {
	for _, m := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

// SignUp はアカウントを作成する。
// 確認メールが有効な場合、登録済みメールアドレスではidentitiesが空のユーザーが返るため
// 重複として扱う。
func (c *Client) SignUp(ctx context.Context, params SignUpParams) (*SignUpResult, error) {
	body := map[string]any{
		"email":    params.Email,
		"password": params.Password,
		"data":     map[string]any{"full_name": params.FullName},
	}
	addCodeChallenge(body, params.CodeChallenge)

	raw, err := c.do(ctx, http.MethodPost, "/signup", redirectQuery(params.RedirectTo), "", body)
	if err != nil {
		return nil, err
	}

	// セッション付きレスポンス（自動確認）とユーザーのみのレスポンスの両方に対応する
	var sess sessionResponse
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode signup response: %w", err)
	}
	if sess.AccessToken != "" && sess.User != nil {
		s := c.toSession(&sess)
		return &SignUpResult{User: s.User, Session: s}, nil
	}

	var user userResponse
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("failed to decode signup user: %w", err)
	}
	if user.hasEmptyIdentities() {
		return nil, &Error{
			Kind:    KindDuplicateAccount,
			Status:  http.StatusOK,
			Message: "user returned without identities",
		}
	}
	return &SignUpResult{User: user.toModel()}, nil
}

// SignInWithPassword はパスワードグラントでトークンを取得する。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]any{"email": email, "password": password}
	return c.token(ctx, "password", body)
}

// Resend はサインアップ確認メールを再送する。
func (c *Client) Resend(ctx context.Context, params ResendParams) error {
	body := map[string]any{"type": "signup", "email": params.Email}
	addCodeChallenge(body, params.CodeChallenge)
	_, err := c.do(ctx, http.MethodPost, "/resend", redirectQuery(params.RedirectTo), "", body)
	return err
}

// ResetPasswordForEmail はパスワード再設定メールを送信する。
func (c *Client) ResetPasswordForEmail(ctx context.Context, params RecoverParams) error {
	body := map[string]any{"email": params.Email}
	addCodeChallenge(body, params.CodeChallenge)
	_, err := c.do(ctx, http.MethodPost, "/recover", redirectQuery(params.RedirectTo), "", body)
	return err
}

// UpdatePassword はパスワードを変更する。
func (c *Client) UpdatePassword(ctx context.Context, accessToken, password string) (*model.IdentityUser, error) {
	raw, err := c.do(ctx, http.MethodPut, "/user", nil, accessToken, map[string]any{"password": password})
	if err != nil {
		return nil, err
	}
	return decodeUser(raw)
}

// ExchangeCodeForSession はPKCEグラントで認可コードをセッションに交換する。
func (c *Client) ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*Session, error) {
	body := map[string]any{"auth_code": code, "code_verifier": codeVerifier}
	return c.token(ctx, "pkce", body)
}

// RefreshSession はリフレッシュトークンでセッションを更新する。
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	body := map[string]any{"refresh_token": refreshToken}
	return c.token(ctx, "refresh_token", body)
}

// GetUser はアクセストークンの所有者を取得する。
func (c *Client) GetUser(ctx context.Context, accessToken string) (*model.IdentityUser, error) {
	raw, err := c.do(ctx, http.MethodGet, "/user", nil, accessToken, nil)
	if err != nil {
		return nil, err
	}
	return decodeUser(raw)
}

// SignOut はIdP側のセッションを失効させる。
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	_, err := c.do(ctx, http.MethodPost, "/logout", nil, accessToken, nil)
	return err
}

// token は/tokenエンドポイントを呼び出す。
func (c *Client) token(ctx context.Context, grantType string, body map[string]any) (*Session, error) {
	query := url.Values{"grant_type": {grantType}}
	raw, err := c.do(ctx, http.MethodPost, "/token", query, "", body)
	if err != nil {
		return nil, err
	}

	var sess sessionResponse
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if sess.AccessToken == "" || sess.User == nil {
		return nil, fmt.Errorf("token response missing session")
	}
	return c.toSession(&sess), nil
}

// do はリクエストを送信し、2xxの場合はボディを返す。
// 2xx以外の場合はエラーレスポンスを分類した *Error を返す。
func (c *Client) do(ctx context.Context, method, path string, query url.Values, accessToken string, body any) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	} else if c.anonKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("IdPへのリクエストに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, &Error{Kind: KindUnknown, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}

	var errResp errorResponse
	_ = json.Unmarshal(raw, &errResp)
	idErr := &Error{
		Status:  resp.StatusCode,
		Code:    errResp.code(),
		Message: errResp.message(),
	}
	idErr.Kind = classify(idErr.Status, idErr.Code, idErr.Message)

	c.logger.Warn("IdPがエラーを返しました",
		slog.String("path", path),
		slog.Int("http_status", resp.StatusCode),
		slog.String("error_code", idErr.Code),
		slog.String("kind", idErr.Kind.String()),
	)
	return nil, idErr
}

func (c *Client) toSession(resp *sessionResponse) *Session {
	expiresAt := time.Unix(resp.ExpiresAt, 0)
	if resp.ExpiresAt == 0 {
		expiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	s := &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
	}
	if resp.User != nil {
		s.User = resp.User.toModel()
	}
	return s
}

func (u *userResponse) toModel() model.IdentityUser {
	var fullName string
	if v, ok := u.UserMetadata["full_name"].(string); ok {
		fullName = v
	}
	return model.IdentityUser{
		ID:               u.ID,
		Email:            u.Email,
		EmailConfirmedAt: u.EmailConfirmedAt,
		FullName:         fullName,
	}
}

// hasEmptyIdentities はidentitiesが空配列かどうかを返す。
// フィールド自体が無い場合は判定しない。
func (u *userResponse) hasEmptyIdentities() bool {
	if len(u.Identities) == 0 || string(u.Identities) == "null" {
		return false
	}
	var identities []json.RawMessage
	if err := json.Unmarshal(u.Identities, &identities); err != nil {
		return false
	}
	return len(identities) == 0
}

func decodeUser(raw []byte) (*model.IdentityUser, error) {
	var user userResponse
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("user response missing id")
	}
	m := user.toModel()
	return &m, nil
}

func redirectQuery(redirectTo string) url.Values {
	if redirectTo == "" {
		return nil
	}
	return url.Values{"redirect_to": {redirectTo}}
}

func addCodeChallenge(body map[string]any, challenge string) {
	if challenge == "" {
		return
	}
	body["code_challenge"] = challenge
	body["code_challenge_method"] = "s256"
}

// compile-time interface check
var _ Provider = (*Client)(nil)
