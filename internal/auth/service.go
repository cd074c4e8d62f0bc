// Package auth はサインアップ、メール確認、ログイン、パスワード再設定と、
// 保護ページに入る前のプロフィール完了ゲートを提供する。
// 資格情報とトークンはIdPが管理し、このパッケージはサーバー側セッションと遷移のみを扱う。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/learnhub/internal/cooldown"
	"github.com/hitoshi/learnhub/internal/identity"
	"github.com/hitoshi/learnhub/internal/model"
	"github.com/hitoshi/learnhub/internal/repository"
	"github.com/hitoshi/learnhub/internal/validation"
)

// 遷移先のパス
const (
	HomePath            = "/"
	LoginPath           = "/auth/login"
	CallbackPath        = "/auth/callback"
	ResetPasswordPath   = "/auth/reset-password"
	CompleteProfilePath = "/profile/complete"

	callbackErrorPath = LoginPath + "?error=callback_error"
)

// 成功時のメッセージ
const (
	signUpSuccessMessage = "Đăng ký thành công! Vui lòng kiểm tra email để xác nhận tài khoản."
	resendSuccessMessage = "Email xác nhận đã được gửi lại. Vui lòng kiểm tra hộp thư."
	forgotSuccessMessage = "Email đặt lại mật khẩu đã được gửi. Vui lòng kiểm tra hộp thư."
	resetSuccessMessage  = "Mật khẩu của bạn đã được cập nhật thành công."
	profileDoneMessage   = "Cập nhật thông tin thành công!"
	missingFieldsMessage = "Vui lòng điền đầy đủ thông tin"
	invalidActionMessage = "Hành động không hợp lệ"
)

// ProfileGate はゲート判定とプロフィール作成に必要なプロフィール操作。
type ProfileGate interface {
	IsComplete(ctx context.Context, userID string) (bool, error)
	EnsureProfile(ctx context.Context, user model.IdentityUser) error
	Complete(ctx context.Context, userID, fullName, dateOfBirth string) (*model.Profile, error)
}

// AccountDirectory はメールアドレスが登録済みかどうかを判定する。
// IdPの応答形状に頼らず、アプリケーション側のusersテーブルで確認する。
type AccountDirectory interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// Recorder は認証フローのメトリクスを記録する。
type Recorder interface {
	RecordAuthOutcome(flow, outcome string)
	RecordCooldownRejected(action string)
	RecordGateDecision(decision string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthOutcome(string, string) {}
func (nopRecorder) RecordCooldownRejected(string)    {}
func (nopRecorder) RecordGateDecision(string)        {}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	BaseURL       string // メール内リンクの遷移先に使う公開URL
	SessionMaxAge int    // セッション有効期間（秒）
}

// ServiceDeps は認証サービスの依存関係。
// TokenVerifierとRecorderは任意。
type ServiceDeps struct {
	Provider      identity.Provider
	Profiles      ProfileGate
	Accounts      AccountDirectory
	SessionRepo   repository.SessionRepository
	Cooldowns     *cooldown.Manager
	TokenVerifier *identity.TokenVerifier
	Recorder      Recorder
}

// Result は認証操作の結果。
type Result struct {
	State        State
	Redirect     string
	Message      string
	Session      *model.Session   // 新しく発行したセッション（ある場合）
	Cooldown     *cooldown.Status // 再送ボタンの残り時間（ある場合）
	CodeVerifier string           // メール内リンクのコード交換に使うPKCEベリファイア（ある場合）
}

// SignUpInput はサインアップフォームの入力値。
type SignUpInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	FullName        string
}

// Service は認証とゲート判定のビジネスロジックを提供する。
type Service struct {
	provider    identity.Provider
	profiles    ProfileGate
	accounts    AccountDirectory
	sessionRepo repository.SessionRepository
	cooldowns   *cooldown.Manager
	verifier    *identity.TokenVerifier
	recorder    Recorder
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(deps ServiceDeps, config ServiceConfig) *Service {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Service{
		provider:    deps.Provider,
		profiles:    deps.Profiles,
		accounts:    deps.Accounts,
		sessionRepo: deps.SessionRepo,
		cooldowns:   deps.Cooldowns,
		verifier:    deps.TokenVerifier,
		recorder:    recorder,
		config:      config,
		now:         time.Now,
	}
}

// SignUp はアカウントを作成し、確認メールの再送クールダウンを開始する。
// 成功するとPendingVerificationになる。IdPがメール確認を省略してセッションを返した場合は
// ログインと同様にプロフィールの完了状態で遷移先を決める。
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (res *Result, err error) {
	defer func() { s.recorder.RecordAuthOutcome(string(flowSignUp), outcome(err)) }()

	if apiErr := validateSignUp(in); apiErr != nil {
		return nil, apiErr
	}
	email := validation.NormalizeEmail(in.Email)
	fullName := strings.TrimSpace(in.FullName)

	exists, err := s.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		slog.Error("failed to check existing account", slog.String("error", err.Error()))
		return nil, model.NewUnknownProviderError(fallbackMessages[flowSignUp])
	}
	if exists {
		return nil, model.NewDuplicateAccountError()
	}

	verifier, challenge, err := identity.NewPKCE()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	signUp, err := s.provider.SignUp(ctx, identity.SignUpParams{
		Email:         email,
		Password:      in.Password,
		FullName:      fullName,
		RedirectTo:    s.callbackURL(""),
		CodeChallenge: challenge,
	})
	if err != nil {
		return nil, toAPIError(flowSignUp, err)
	}

	if signUp.Session != nil {
		return s.establish(ctx, StateAnonymous, signUp.Session, HomePath)
	}

	// 確認前のアカウントも登録済みとして扱えるよう、この時点でプロフィール行を作る。
	// 失敗しても初回ログイン時のestablishで再作成されるため、サインアップ自体は成功とする。
	if err := s.profiles.EnsureProfile(ctx, signUp.User); err != nil {
		slog.Error("failed to create profile after sign up",
			slog.String("user_id", signUp.User.ID),
			slog.String("error", err.Error()),
		)
	}

	state, err := advance(StateAnonymous, EventSubmitSignUp, EventSignUpSucceeded)
	if err != nil {
		return nil, err
	}

	timer := s.cooldowns.Open(ctx, cooldown.ActionSignupEmail, email)
	timer.Start(ctx)
	status := timer.Status()

	slog.Info("user signed up",
		slog.String("user_id", signUp.User.ID),
		slog.String("state", string(state)),
	)
	return &Result{
		State:        state,
		Message:      signUpSuccessMessage,
		Cooldown:     &status,
		CodeVerifier: verifier,
	}, nil
}

// ResendVerification は確認メールを再送する。
// actionはsignup_emailかlogin_resendで、クールダウン中はCOOLDOWN_ACTIVEを返す。
func (s *Service) ResendVerification(ctx context.Context, action cooldown.Action, email string) (res *Result, err error) {
	defer func() { s.recorder.RecordAuthOutcome(string(flowResend), outcome(err)) }()

	if action != cooldown.ActionSignupEmail && action != cooldown.ActionLoginResend {
		return nil, invalidActionError()
	}
	if msg := validation.ValidateEmail(email); msg != "" {
		return nil, model.NewValidationError(msg, map[string]string{validation.FieldEmail: msg})
	}
	email = validation.NormalizeEmail(email)

	timer, err := s.openIdle(ctx, action, email)
	if err != nil {
		return nil, err
	}

	verifier, challenge, err := identity.NewPKCE()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	if err := s.provider.Resend(ctx, identity.ResendParams{
		Email:         email,
		RedirectTo:    s.callbackURL(""),
		CodeChallenge: challenge,
	}); err != nil {
		return nil, toAPIError(flowResend, err)
	}

	state, err := Transition(StatePendingVerification, EventResendRequested)
	if err != nil {
		return nil, err
	}

	timer.Start(ctx)
	status := timer.Status()
	return &Result{
		State:        state,
		Message:      resendSuccessMessage,
		Cooldown:     &status,
		CodeVerifier: verifier,
	}, nil
}

// Login はメールアドレスとパスワードでログインし、サーバー側セッションを発行する。
// メール未確認の場合はIdPのセッションを破棄してUNVERIFIED_EMAILを返す。
// 成功時はログインのたびにプロフィールの完了状態を評価し直す。
func (s *Service) Login(ctx context.Context, email, password string) (res *Result, err error) {
	defer func() { s.recorder.RecordAuthOutcome(string(flowLogin), outcome(err)) }()

	if msg := validation.ValidateEmail(email); msg != "" {
		return nil, model.NewValidationError(msg, map[string]string{validation.FieldEmail: msg})
	}
	if msg := validation.ValidatePassword(password); msg != "" {
		return nil, model.NewValidationError(msg, map[string]string{validation.FieldPassword: msg})
	}
	email = validation.NormalizeEmail(email)

	idSession, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		if identity.KindOf(err) == identity.KindInvalidCredentials {
			return nil, s.invalidCredentials(ctx, email)
		}
		return nil, toAPIError(flowLogin, err)
	}

	if idSession.User.EmailConfirmedAt == nil {
		if err := s.provider.SignOut(ctx, idSession.AccessToken); err != nil {
			slog.Warn("failed to sign out unverified user",
				slog.String("user_id", idSession.User.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, model.NewUnverifiedEmailError()
	}

	return s.establish(ctx, StateAnonymous, idSession, HomePath)
}

// ForgotPassword はパスワード再設定メールを送信し、クールダウンを開始する。
// 未登録のメールアドレスの場合はEMAIL_NOT_REGISTEREDを返す。
func (s *Service) ForgotPassword(ctx context.Context, email string) (res *Result, err error) {
	defer func() { s.recorder.RecordAuthOutcome(string(flowForgotPassword), outcome(err)) }()

	if msg := validation.ValidateEmail(email); msg != "" {
		return nil, model.NewValidationError(msg, map[string]string{validation.FieldEmail: msg})
	}
	email = validation.NormalizeEmail(email)

	timer, err := s.openIdle(ctx, cooldown.ActionForgotPassword, email)
	if err != nil {
		return nil, err
	}

	exists, err := s.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		slog.Error("failed to check existing account", slog.String("error", err.Error()))
		return nil, model.NewUnknownProviderError(fallbackMessages[flowForgotPassword])
	}
	if !exists {
		return nil, model.NewEmailNotRegisteredError(forgotNotRegisteredMessage)
	}

	verifier, challenge, err := identity.NewPKCE()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	if err := s.provider.ResetPasswordForEmail(ctx, identity.RecoverParams{
		Email:         email,
		RedirectTo:    s.callbackURL(ResetPasswordPath),
		CodeChallenge: challenge,
	}); err != nil {
		return nil, toAPIError(flowForgotPassword, err)
	}

	timer.Start(ctx)
	status := timer.Status()
	return &Result{
		State:        StateAnonymous,
		Message:      forgotSuccessMessage,
		Cooldown:     &status,
		CodeVerifier: verifier,
	}, nil
}

// ResetPassword はパスワード再設定リンクで確立したセッションのパスワードを変更する。
// 有効なセッションが無い場合はEXPIRED_OR_INVALID_TOKENを返す。
// 成功後は再設定用のセッションを破棄し、ログイン画面へ遷移させる。
func (s *Service) ResetPassword(ctx context.Context, sessionID, password, confirm string) (res *Result, err error) {
	defer func() { s.recorder.RecordAuthOutcome(string(flowResetPassword), outcome(err)) }()

	session, err := s.CurrentSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, model.NewExpiredOrInvalidTokenError()
	}

	if msg := validation.ValidatePassword(password); msg != "" {
		return nil, model.NewValidationError(msg, map[string]string{validation.FieldPassword: msg})
	}
	if msg := validation.ValidatePasswordConfirmation(password, confirm); msg != "" {
		return nil, model.NewValidationError(msg, map[string]string{validation.FieldConfirmPassword: msg})
	}

	if _, err := s.provider.UpdatePassword(ctx, session.AccessToken, password); err != nil {
		return nil, toAPIError(flowResetPassword, err)
	}

	slog.Info("password reset", slog.String("user_id", session.UserID))

	if err := s.SignOut(ctx, sessionID); err != nil {
		slog.Warn("failed to sign out after password reset",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
	}
	return &Result{
		State:    StateAnonymous,
		Redirect: LoginPath,
		Message:  resetSuccessMessage,
	}, nil
}

// HandleCallback はメール内リンクのコードをセッションに交換し、遷移先を決める。
// コードが無ければログイン画面、交換に失敗した場合はエラー付きのログイン画面へ遷移する。
// プロフィール未完了の場合はnextに関係なくプロフィール完了画面へ遷移する。
// ただしパスワード再設定の場合はプロフィールに関係なく再設定画面へ遷移する。
func (s *Service) HandleCallback(ctx context.Context, code, next, codeVerifier string) *Result {
	if code == "" {
		return &Result{State: StateAnonymous, Redirect: LoginPath}
	}
	next = SanitizeNext(next)

	idSession, err := s.provider.ExchangeCodeForSession(ctx, code, codeVerifier)
	if err != nil {
		s.recorder.RecordAuthOutcome(string(flowCallback), outcome(toAPIError(flowCallback, err)))
		slog.Warn("failed to exchange auth code",
			slog.String("error", err.Error()),
		)
		return &Result{State: StateAnonymous, Redirect: callbackErrorPath}
	}

	res, err := s.establish(ctx, StatePendingVerification, idSession, next)
	s.recorder.RecordAuthOutcome(string(flowCallback), outcome(err))
	if err != nil {
		slog.Error("failed to establish session from callback",
			slog.String("user_id", idSession.User.ID),
			slog.String("error", err.Error()),
		)
		return &Result{State: StateAnonymous, Redirect: callbackErrorPath}
	}
	if next == ResetPasswordPath {
		res.Redirect = ResetPasswordPath
	}
	return res
}

// CompleteProfile は初回のプロフィール入力を保存し、Completeに遷移させる。
// 検証エラーの場合は状態を変えない。
func (s *Service) CompleteProfile(ctx context.Context, userID, fullName, dateOfBirth string) (res *Result, err error) {
	defer func() { s.recorder.RecordAuthOutcome(string(flowCompleteProfile), outcome(err)) }()

	if _, err := s.profiles.Complete(ctx, userID, fullName, dateOfBirth); err != nil {
		return nil, err
	}
	state, err := Transition(StateVerifiedIncompleteProfile, EventProfileCompleted)
	if err != nil {
		return nil, err
	}
	return &Result{State: state, Redirect: HomePath, Message: profileDoneMessage}, nil
}

// Guard は保護ページに入る前のゲート判定を行う。
// セッションが無ければログイン画面、プロフィール未完了ならプロフィール完了画面へ誘導する。
func (s *Service) Guard(ctx context.Context, sessionID string) (Decision, error) {
	session, err := s.CurrentSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return s.GuardSession(ctx, session)
}

// GuardSession は取得済みのセッションに対してゲート判定を行う。
// sessionがnilの場合はログイン画面へ誘導する。
func (s *Service) GuardSession(ctx context.Context, session *model.Session) (decision Decision, err error) {
	defer func() {
		if err == nil {
			s.recorder.RecordGateDecision(string(decision))
		}
	}()

	if session == nil {
		return DecisionLogin, nil
	}

	complete, err := s.profiles.IsComplete(ctx, session.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to check profile completeness: %w", err)
	}
	if !complete {
		return DecisionCompleteProfile, nil
	}
	return DecisionAllow, nil
}

// CurrentSession はセッションIDから有効なセッションを取得する。
// アクセストークンが期限切れ、またはローカル検証に失敗した場合はIdPで更新する。
// 更新に失敗した場合はセッションを破棄してnilを返す。
func (s *Service) CurrentSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	if !s.needsRefresh(session) {
		return session, nil
	}

	refreshed, err := s.provider.RefreshSession(ctx, session.RefreshToken)
	if err != nil {
		slog.Info("session refresh failed, discarding session",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		if delErr := s.sessionRepo.DeleteByID(ctx, sessionID); delErr != nil {
			slog.Warn("failed to delete stale session",
				slog.String("user_id", session.UserID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, nil
	}

	session.AccessToken = refreshed.AccessToken
	session.RefreshToken = refreshed.RefreshToken
	session.AccessExpiresAt = refreshed.ExpiresAt
	session.EmailVerifiedAt = refreshed.User.EmailConfirmedAt
	if err := s.sessionRepo.UpdateTokens(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save refreshed tokens: %w", err)
	}
	return session, nil
}

// SignOut はIdP側のセッションを失効させ、サーバー側セッションを削除する。
// IdPへの通知はベストエフォートで、失敗してもセッション行は削除する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}
	if session != nil {
		if err := s.provider.SignOut(ctx, session.AccessToken); err != nil {
			slog.Warn("identity provider sign out failed",
				slog.String("user_id", session.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("user signed out")
	return nil
}

// CooldownStatus はアクションとメールアドレスの組のクールダウン状態を返す。
// 画面の再読み込み後もカウントダウンを再開できるようにする。
func (s *Service) CooldownStatus(ctx context.Context, action cooldown.Action, email string) (cooldown.Status, error) {
	if !action.Valid() {
		return cooldown.Status{}, invalidActionError()
	}
	return s.cooldowns.Open(ctx, action, validation.NormalizeEmail(email)).Status(), nil
}

// CooldownTimer はアクションとメールアドレスの組のTimerを開く。
// SSEでカウントダウンを配信するために使う。
func (s *Service) CooldownTimer(ctx context.Context, action cooldown.Action, email string) (*cooldown.Timer, error) {
	if !action.Valid() {
		return nil, invalidActionError()
	}
	return s.cooldowns.Open(ctx, action, validation.NormalizeEmail(email)), nil
}

// establish はIdPのセッションからプロフィールとサーバー側セッションを用意し、
// プロフィールの完了状態に応じて遷移先を決める。
func (s *Service) establish(ctx context.Context, from State, idSession *identity.Session, next string) (*Result, error) {
	if err := s.profiles.EnsureProfile(ctx, idSession.User); err != nil {
		return nil, err
	}

	session, err := s.createSession(ctx, idSession)
	if err != nil {
		return nil, err
	}

	complete, err := s.profiles.IsComplete(ctx, idSession.User.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check profile completeness: %w", err)
	}

	state, err := Transition(from, authenticatedEvent(complete))
	if err != nil {
		return nil, err
	}

	redirect := next
	if !complete {
		redirect = CompleteProfilePath
	}

	slog.Info("user authenticated",
		slog.String("user_id", session.UserID),
		slog.String("state", string(state)),
	)
	return &Result{State: state, Redirect: redirect, Session: session}, nil
}

// createSession はIdPのトークンを保持するサーバー側セッションを作成する。
func (s *Service) createSession(ctx context.Context, idSession *identity.Session) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:              sessionID,
		UserID:          idSession.User.ID,
		Email:           idSession.User.Email,
		EmailVerifiedAt: idSession.User.EmailConfirmedAt,
		AccessToken:     idSession.AccessToken,
		RefreshToken:    idSession.RefreshToken,
		AccessExpiresAt: idSession.ExpiresAt,
		ExpiresAt:       now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt:       now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// needsRefresh はアクセストークンの更新が必要かどうかを返す。
func (s *Service) needsRefresh(session *model.Session) bool {
	if session.AccessTokenExpired(s.now()) {
		return true
	}
	if s.verifier == nil {
		return false
	}
	claims, err := s.verifier.Verify(session.AccessToken)
	if err != nil {
		slog.Info("access token rejected by local verification",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		return true
	}
	return claims.Subject != session.UserID
}

// openIdle はクールダウン中でないTimerを開く。クールダウン中はCOOLDOWN_ACTIVEを返す。
func (s *Service) openIdle(ctx context.Context, action cooldown.Action, email string) (*cooldown.Timer, error) {
	timer := s.cooldowns.Open(ctx, action, email)
	if timer.IsActive() {
		s.recorder.RecordCooldownRejected(string(action))
		return nil, model.NewCooldownActiveError(timer.SecondsLeft())
	}
	return timer, nil
}

// invalidCredentials はログイン失敗を、未登録のメールアドレスとパスワード不一致に分類する。
func (s *Service) invalidCredentials(ctx context.Context, email string) *model.APIError {
	exists, err := s.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		slog.Warn("failed to check existing account", slog.String("error", err.Error()))
		return model.NewInvalidCredentialsError()
	}
	if !exists {
		return model.NewEmailNotRegisteredError(loginNotRegisteredMessage)
	}
	return model.NewInvalidCredentialsError()
}

// callbackURL はメール内リンクの遷移先URLを組み立てる。
func (s *Service) callbackURL(next string) string {
	u := s.config.BaseURL + CallbackPath
	if next != "" {
		u += "?next=" + url.QueryEscape(next)
	}
	return u
}

// SanitizeNext はコールバック後の遷移先をサイト内の絶対パスに制限する。
// 不正な値の場合は "/" を返す。
func SanitizeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return HomePath
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return HomePath
	}
	return next
}

// validateSignUp はサインアップフォームを検証する。
// 未入力の項目がある場合は個別のメッセージではなくまとめて入力を促す。
func validateSignUp(in SignUpInput) *model.APIError {
	missing := make(map[string]string)
	if strings.TrimSpace(in.Email) == "" {
		missing[validation.FieldEmail] = missingFieldsMessage
	}
	if in.Password == "" {
		missing[validation.FieldPassword] = missingFieldsMessage
	}
	if strings.TrimSpace(in.FullName) == "" {
		missing[validation.FieldFullName] = missingFieldsMessage
	}
	if len(missing) > 0 {
		return model.NewValidationError(missingFieldsMessage, missing)
	}

	if msg := validation.ValidateEmail(in.Email); msg != "" {
		return model.NewValidationError(msg, map[string]string{validation.FieldEmail: msg})
	}
	if msg := validation.ValidatePassword(in.Password); msg != "" {
		return model.NewValidationError(msg, map[string]string{validation.FieldPassword: msg})
	}
	if msg := validation.ValidatePasswordConfirmation(in.Password, in.ConfirmPassword); msg != "" {
		return model.NewValidationError(msg, map[string]string{validation.FieldConfirmPassword: msg})
	}
	return nil
}

func invalidActionError() *model.APIError {
	return model.NewValidationError(invalidActionMessage, map[string]string{"action": invalidActionMessage})
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
