package cooldown

import (
	"context"
	"strings"
)

// Action はクールダウン対象の論理アクション名。
type Action string

const (
	// ActionSignupEmail はサインアップ直後の確認メール再送。
	ActionSignupEmail Action = "signup_email"
	// ActionLoginResend はログイン画面からの確認メール再送。
	ActionLoginResend Action = "login_resend"
	// ActionForgotPassword はパスワード再設定メールの送信。
	ActionForgotPassword Action = "forgot_password"
)

// DefaultSeconds はクールダウンの既定の長さ（秒）。
const DefaultSeconds = 60

// Valid は定義済みのアクションかどうかを返す。
func (a Action) Valid() bool {
	switch a {
	case ActionSignupEmail, ActionLoginResend, ActionForgotPassword:
		return true
	default:
		return false
	}
}

// ParseAction は文字列をActionに変換する。未定義の場合はok=false。
func ParseAction(s string) (Action, bool) {
	a := Action(strings.TrimSpace(s))
	return a, a.Valid()
}

// Manager はストアとウィンドウ長を束ね、アクション+対象ごとのTimerを開く。
// ブラウザ単位のlocalStorageの代わりに、サーバー側で対象（正規化済みメールアドレス）ごとに
// ウィンドウを管理する。
type Manager struct {
	store   Store
	seconds int
	opts    []Option
}

// NewManager はManagerを生成する。secondsが0以下の場合はDefaultSecondsを使用する。
func NewManager(store Store, seconds int, opts ...Option) *Manager {
	if seconds <= 0 {
		seconds = DefaultSeconds
	}
	return &Manager{store: store, seconds: seconds, opts: opts}
}

// Open はactionとsubjectに対応するTimerを開く。
// 永続化済みのウィンドウがあれば残り時間から再開される。
func (m *Manager) Open(ctx context.Context, action Action, subject string) *Timer {
	return New(ctx, m.store, Key(action, subject), m.seconds, m.opts...)
}

// Seconds はウィンドウの長さ（秒）を返す。
func (m *Manager) Seconds() int {
	return m.seconds
}

// Key はアクションと対象から永続化キーを組み立てる。
func Key(action Action, subject string) string {
	subject = strings.ToLower(strings.TrimSpace(subject))
	if subject == "" {
		return string(action)
	}
	return string(action) + ":" + subject
}
