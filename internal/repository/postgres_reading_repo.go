package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/learnhub/internal/model"
)

// PostgresReadingRepo はPostgreSQLを使用した読み物リポジトリ。
type PostgresReadingRepo struct {
	db *sql.DB
}

// NewPostgresReadingRepo はPostgresReadingRepoを生成する。
func NewPostgresReadingRepo(db *sql.DB) *PostgresReadingRepo {
	return &PostgresReadingRepo{db: db}
}

const readingFeedColumns = `id, feed_url, title, etag, last_modified, last_error,
	fetch_status, consecutive_errors, next_fetch_at, fetched_at, created_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanReadingFeed は1行をReadingFeedに読み込む。
func scanReadingFeed(row rowScanner) (*model.ReadingFeed, error) {
	feed := &model.ReadingFeed{}
	var etag, lastModified, lastError sql.NullString
	var fetchedAt sql.NullTime
	var status string
	if err := row.Scan(
		&feed.ID, &feed.FeedURL, &feed.Title, &etag, &lastModified, &lastError,
		&status, &feed.ConsecutiveErrors, &feed.NextFetchAt, &fetchedAt, &feed.CreatedAt,
	); err != nil {
		return nil, err
	}
	feed.ETag = nullStringValue(etag)
	feed.LastModified = nullStringValue(lastModified)
	feed.LastError = nullStringValue(lastError)
	feed.FetchStatus = model.FetchStatus(status)
	if fetchedAt.Valid {
		t := fetchedAt.Time
		feed.FetchedAt = &t
	}
	return feed, nil
}

// EnsureFeed はフィードURLのレコードを取得し、無い場合は作成する。
func (r *PostgresReadingRepo) EnsureFeed(ctx context.Context, feedURL string) (*model.ReadingFeed, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reading_feeds (id, feed_url, title, created_at)
		 VALUES ($1, $2, '', now())
		 ON CONFLICT (feed_url) DO NOTHING`,
		uuid.New().String(), feedURL,
	)
	if err != nil {
		return nil, fmt.Errorf("読み物フィードの登録に失敗しました: %w", err)
	}

	feed, err := scanReadingFeed(r.db.QueryRowContext(ctx,
		`SELECT `+readingFeedColumns+` FROM reading_feeds WHERE feed_url = $1`,
		feedURL,
	))
	if err != nil {
		return nil, fmt.Errorf("読み物フィードの取得に失敗しました: %w", err)
	}
	return feed, nil
}

// ListFeeds は登録済みのフィード一覧を返す。
func (r *PostgresReadingRepo) ListFeeds(ctx context.Context) ([]*model.ReadingFeed, error) {
	return r.queryFeeds(ctx,
		`SELECT `+readingFeedColumns+` FROM reading_feeds ORDER BY created_at`,
	)
}

// ListDueForFetch はnext_fetch_atを過ぎたアクティブなフィードを返す。
// 複数ワーカーが同じフィードを同時に取得しないようFOR UPDATE SKIP LOCKEDを使用する。
func (r *PostgresReadingRepo) ListDueForFetch(ctx context.Context) ([]*model.ReadingFeed, error) {
	return r.queryFeeds(ctx,
		`SELECT `+readingFeedColumns+` FROM reading_feeds
		 WHERE fetch_status = $1 AND next_fetch_at <= now()
		 ORDER BY next_fetch_at
		 FOR UPDATE SKIP LOCKED`,
		string(model.FetchStatusActive),
	)
}

func (r *PostgresReadingRepo) queryFeeds(ctx context.Context, query string, args ...any) ([]*model.ReadingFeed, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("読み物フィード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []*model.ReadingFeed
	for rows.Next() {
		feed, err := scanReadingFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("読み物フィードの読み取りに失敗しました: %w", err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("読み物フィードの走査に失敗しました: %w", err)
	}
	return feeds, nil
}

// UpdateFetchState はフィードの取得状態を更新する。
func (r *PostgresReadingRepo) UpdateFetchState(ctx context.Context, feed *model.ReadingFeed) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reading_feeds SET
		    title = $2, etag = $3, last_modified = $4, last_error = $5,
		    fetch_status = $6, consecutive_errors = $7, next_fetch_at = $8, fetched_at = $9
		 WHERE id = $1`,
		feed.ID, feed.Title, nullString(feed.ETag), nullString(feed.LastModified),
		nullString(feed.LastError), string(feed.FetchStatus), feed.ConsecutiveErrors,
		feed.NextFetchAt, feed.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("読み物フィードの状態更新に失敗しました: %w", err)
	}
	return nil
}

// UpsertItem はfeed_idとguidで記事を冪等に保存する。
// 既存の記事はタイトル・リンク・本文・公開日時を上書きする。
func (r *PostgresReadingRepo) UpsertItem(ctx context.Context, item *model.ReadingItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reading_items (id, feed_id, guid, title, link, summary, excerpt,
		                            published_at, fetched_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (feed_id, guid) DO UPDATE SET
		    title = EXCLUDED.title, link = EXCLUDED.link, summary = EXCLUDED.summary,
		    excerpt = EXCLUDED.excerpt, published_at = EXCLUDED.published_at,
		    fetched_at = EXCLUDED.fetched_at`,
		item.ID, item.FeedID, item.GUID, item.Title, nullString(item.Link),
		nullString(item.Summary), nullString(item.Excerpt), item.PublishedAt,
		item.FetchedAt, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("読み物記事の保存に失敗しました: %w", err)
	}
	return nil
}

// ListRecent は公開日時の新しい順に記事を返す。公開日時が無い記事は取得日時で並べる。
func (r *PostgresReadingRepo) ListRecent(ctx context.Context, limit int) ([]*model.ReadingItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, feed_id, guid, title, link, summary, excerpt, published_at, fetched_at, created_at
		 FROM reading_items
		 ORDER BY COALESCE(published_at, fetched_at) DESC, id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("読み物記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []*model.ReadingItem
	for rows.Next() {
		item := &model.ReadingItem{}
		var link, summary, excerpt sql.NullString
		var publishedAt sql.NullTime
		if err := rows.Scan(
			&item.ID, &item.FeedID, &item.GUID, &item.Title, &link, &summary, &excerpt,
			&publishedAt, &item.FetchedAt, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("読み物記事の読み取りに失敗しました: %w", err)
		}
		item.Link = nullStringValue(link)
		item.Summary = nullStringValue(summary)
		item.Excerpt = nullStringValue(excerpt)
		if publishedAt.Valid {
			t := publishedAt.Time
			item.PublishedAt = &t
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("読み物記事の走査に失敗しました: %w", err)
	}
	return items, nil
}

// DeleteItemsOlderThan はcutoffより前に取得された記事を削除する。
func (r *PostgresReadingRepo) DeleteItemsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM reading_items WHERE fetched_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("古い読み物記事の削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ ReadingRepository = (*PostgresReadingRepo)(nil)
