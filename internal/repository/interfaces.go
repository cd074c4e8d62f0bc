// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/learnhub/internal/model"
)

// ProfileRepository はusersテーブル（プロフィール）の永続化インターフェース。
// すべての操作は呼び出し元自身のユーザーIDでスコープされる。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// ExistsByEmail は指定メールアドレスのプロフィールが存在するかを返す。
	// メールアドレスは大文字小文字を区別せずに比較する。
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// CreateIfNotExists はプロフィールが無い場合のみ作成する。
	// 既存の行は変更しない（氏名・生年月日を上書きしない）。
	CreateIfNotExists(ctx context.Context, profile *model.Profile) error

	// Update はfull_nameとdate_of_birthのみを部分更新し、更新後のプロフィールを返す。
	// nilのフィールドは変更しない。対象が無い場合はnilを返す。
	Update(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// UpdateTokens はIdPのトークン更新結果を保存する。
	UpdateTokens(ctx context.Context, session *model.Session) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ReadingRepository は読み物フィードと記事の永続化インターフェース。
type ReadingRepository interface {
	// EnsureFeed はフィードURLのレコードを取得し、無い場合は作成する。
	EnsureFeed(ctx context.Context, feedURL string) (*model.ReadingFeed, error)

	// ListFeeds は登録済みのフィード一覧を返す。
	ListFeeds(ctx context.Context) ([]*model.ReadingFeed, error)

	// ListDueForFetch はnext_fetch_atを過ぎたアクティブなフィードを返す。
	ListDueForFetch(ctx context.Context) ([]*model.ReadingFeed, error)

	// UpdateFetchState はタイトル、条件付きGETヘッダー、エラー状態、次回取得日時を更新する。
	UpdateFetchState(ctx context.Context, feed *model.ReadingFeed) error

	// UpsertItem はfeed_idとguidで記事を冪等に保存する。
	UpsertItem(ctx context.Context, item *model.ReadingItem) error

	// ListRecent は公開日時の新しい順に記事を返す。
	ListRecent(ctx context.Context, limit int) ([]*model.ReadingItem, error)

	// DeleteItemsOlderThan はcutoffより前に取得された記事を削除し、削除件数を返す。
	DeleteItemsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
