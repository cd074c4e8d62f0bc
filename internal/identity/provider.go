// Package identity は外部IdP（GoTrue互換の認証API）との境界を提供する。
// 資格情報の保存、パスワードハッシュ、トークン発行はすべてIdP側が担い、
// このパッケージはREST呼び出しとエラー分類のみを行う。
package identity

import (
	"context"
	"time"

	"github.com/hitoshi/learnhub/internal/model"
)

// Session はIdPが発行したトークン一式を表す。
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         model.IdentityUser
}

// SignUpParams はサインアップ要求のパラメータ。
type SignUpParams struct {
	Email         string
	Password      string
	FullName      string // ユーザーメタデータとして保存され、初回セッション時にusersテーブルへ複製される
	RedirectTo    string // 確認メール内リンクの遷移先
	CodeChallenge string // PKCEのS256チャレンジ（任意）
}

// SignUpResult はサインアップの結果。
// メール確認が必要な場合Sessionはnil。
type SignUpResult struct {
	User    model.IdentityUser
	Session *Session
}

// ResendParams は確認メール再送のパラメータ。
type ResendParams struct {
	Email         string
	RedirectTo    string
	CodeChallenge string
}

// RecoverParams はパスワード再設定メール送信のパラメータ。
type RecoverParams struct {
	Email         string
	RedirectTo    string
	CodeChallenge string
}

// Provider はIdPが提供する操作のインターフェース。
// 失敗時は *Error を返し、Kindで分類済みの原因を参照できる。
type Provider interface {
	// SignUp はアカウントを作成し、確認メールを送信させる。
	SignUp(ctx context.Context, params SignUpParams) (*SignUpResult, error)
	// SignInWithPassword はメールアドレスとパスワードでログインする。
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// Resend はサインアップ確認メールを再送する。
	Resend(ctx context.Context, params ResendParams) error
	// ResetPasswordForEmail はパスワード再設定メールを送信する。
	ResetPasswordForEmail(ctx context.Context, params RecoverParams) error
	// UpdatePassword はアクセストークンの所有者のパスワードを変更する。
	UpdatePassword(ctx context.Context, accessToken, password string) (*model.IdentityUser, error)
	// ExchangeCodeForSession はメール内リンクの認可コードをセッションに交換する。
	ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*Session, error)
	// RefreshSession はリフレッシュトークンでセッションを更新する。
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
	// GetUser はアクセストークンの所有者を取得する。
	GetUser(ctx context.Context, accessToken string) (*model.IdentityUser, error)
	// SignOut はIdP側のセッションを失効させる。
	SignOut(ctx context.Context, accessToken string) error
}
