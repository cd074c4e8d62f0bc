// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// DefaultRoleID は一般学習者のrole_id。
const DefaultRoleID = 1

// Profile はusersテーブルに保存されるアプリケーション側のユーザー情報を表す。
// IDはIdPのユーザーIDと1:1で対応する。
// full_nameとdate_of_birthはオンボーディング完了まで空のことがある。
type Profile struct {
	ID          string
	Email       string
	FullName    string
	DateOfBirth *time.Time // 未入力の場合はnil
	RoleID      int
	CreatedAt   time.Time
}

// IsComplete はプロフィールの必須項目が埋まっているかを返す。
// full_nameがトリム後に空でなく、かつdate_of_birthが設定されている場合のみtrue。
func (p *Profile) IsComplete() bool {
	if p == nil {
		return false
	}
	return strings.TrimSpace(p.FullName) != "" && p.DateOfBirth != nil
}

// ProfileUpdate はプロフィール更新で変更を許可するフィールドのみを保持する。
// nilのフィールドは変更しない。
type ProfileUpdate struct {
	FullName    *string
	DateOfBirth *time.Time
}

// IdentityUser はIdPが返すユーザー情報を表す。
// アプリケーションからは読み取り専用として扱う。
type IdentityUser struct {
	ID               string
	Email            string
	EmailConfirmedAt *time.Time
	FullName         string // サインアップ時のメタデータ
}

// Session はサーバー側で保持するログインセッションを表す。
// トークンはIdPが発行し、ブラウザにはIDのみをHTTP Only Cookieで渡す。
type Session struct {
	ID              string
	UserID          string
	Email           string
	EmailVerifiedAt *time.Time
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time // アクセストークンの有効期限
	ExpiresAt       time.Time // サーバーセッションの有効期限
	CreatedAt       time.Time
}

// AccessTokenExpired はアクセストークンが期限切れかどうかを返す。
// 時計ずれを考慮して30秒早めに期限切れとみなす。
func (s *Session) AccessTokenExpired(now time.Time) bool {
	return !now.Add(30 * time.Second).Before(s.AccessExpiresAt)
}
