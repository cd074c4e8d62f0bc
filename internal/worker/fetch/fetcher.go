package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/learnhub/internal/model"
	"github.com/hitoshi/learnhub/internal/reading"
)

const (
	userAgent    = "LearnHub/1.0 Reading Fetcher"
	acceptHeader = "application/rss+xml, application/atom+xml, application/xml, text/xml, */*"
)

// FeedStore はFetcherが利用する読み物フィードの永続化操作。
type FeedStore interface {
	UpdateFetchState(ctx context.Context, feed *model.ReadingFeed) error
	UpsertItem(ctx context.Context, item *model.ReadingItem) error
}

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Sanitizer は記事本文HTMLのサニタイズを行う。
type Sanitizer interface {
	Sanitize(input string) string
}

// Recorder はフェッチ結果のメトリクス記録先。
type Recorder interface {
	RecordFetchSuccess(feedURL string)
	RecordFetchFailure(feedURL string, reason string)
	RecordParseFailure(feedURL string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordItemsUpserted(count int)
}

type nopRecorder struct{}

func (nopRecorder) RecordFetchSuccess(string) {}
func (nopRecorder) RecordFetchFailure(string, string) {}
func (nopRecorder) RecordParseFailure(string) {}
func (nopRecorder) RecordHTTPStatus(int) {}
func (nopRecorder) RecordFetchLatency(time.Duration) {}
func (nopRecorder) RecordItemsUpserted(int) {}

// Config はFetcherの動作設定。
type Config struct {
	Timeout       time.Duration // HTTPタイムアウト
	MaxBodySize   int64         // レスポンスボディの最大サイズ
	Interval      time.Duration // 成功時の次回取得までの間隔
	ExcerptLength int           // 抜粋の最大文字数
}

// Fetcher は個別の読み物フィードのHTTP取得とパースを行う。
// ETag/Last-Modifiedを使用した条件付きGET、SSRF検証、
// gofeedによるパース、本文のサニタイズと抜粋生成、記事の保存を実行する。
type Fetcher struct {
	store     FeedStore
	ssrfGuard SSRFValidator
	sanitizer Sanitizer
	recorder  Recorder
	logger    *slog.Logger
	config    Config
	now       func() time.Time
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// recorderがnilの場合はメトリクスを記録しない。
func NewFetcher(
	store FeedStore,
	ssrfGuard SSRFValidator,
	sanitizer Sanitizer,
	recorder Recorder,
	logger *slog.Logger,
	config Config,
) *Fetcher {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	return &Fetcher{
		store:     store,
		ssrfGuard: ssrfGuard,
		sanitizer: sanitizer,
		recorder:  recorder,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// Fetch はフィードを取得し、結果に応じてフィード状態を更新する。
// FeedFetcherServiceインターフェースを実装する。
func (f *Fetcher) Fetch(ctx context.Context, feed *model.ReadingFeed) error {
	start := f.now()

	// SSRF検証
	if err := f.ssrfGuard.ValidateURL(feed.FeedURL); err != nil {
		f.logger.Error("SSRF検証に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		f.recorder.RecordFetchFailure(feed.FeedURL, "ssrf")
		ApplyStop(feed, fmt.Sprintf("SSRF検証失敗: %s", err.Error()))
		f.saveState(ctx, feed)
		return fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	client := f.ssrfGuard.NewSafeClient(f.config.Timeout, f.config.MaxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	// 条件付きGET
	if feed.ETag != "" {
		req.Header.Set("If-None-Match", feed.ETag)
	}
	if feed.LastModified != "" {
		req.Header.Set("If-Modified-Since", feed.LastModified)
	}

	resp, err := client.Do(req)
	if err != nil {
		f.logger.Error("HTTPリクエストに失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		f.recorder.RecordFetchFailure(feed.FeedURL, "network")
		ApplyBackoff(feed, fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()), f.now())
		f.saveState(ctx, feed)
		return fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	duration := f.now().Sub(start)
	f.recorder.RecordHTTPStatus(resp.StatusCode)
	f.recorder.RecordFetchLatency(duration)

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case FetchResultNotModified:
		f.logger.Info("フィードは未変更です（304）",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		f.recorder.RecordFetchSuccess(feed.FeedURL)
		ApplySuccess(feed, f.config.Interval, f.now())
		return f.store.UpdateFetchState(ctx, feed)

	case FetchResultStop:
		reason := fmt.Sprintf("HTTPステータス %d により取得を停止しました", resp.StatusCode)
		f.logger.Warn("読み物フィードの取得を停止します",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		f.recorder.RecordFetchFailure(feed.FeedURL, "stopped")
		ApplyStop(feed, reason)
		return f.store.UpdateFetchState(ctx, feed)

	case FetchResultBackoff:
		f.logger.Warn("読み物フィードの取得にバックオフを適用します",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", feed.ConsecutiveErrors+1),
		)
		f.recorder.RecordFetchFailure(feed.FeedURL, "backoff")
		ApplyBackoff(feed, fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode), f.now())
		return f.store.UpdateFetchState(ctx, feed)

	case FetchResultOK:
	default:
		f.logger.Warn("予期しないHTTPステータスコード",
			slog.String("feed_id", feed.ID),
			slog.Int("http_status", resp.StatusCode),
		)
		f.recorder.RecordFetchFailure(feed.FeedURL, "unexpected_status")
		ApplyBackoff(feed, fmt.Sprintf("予期しないHTTPステータス: %d", resp.StatusCode), f.now())
		return f.store.UpdateFetchState(ctx, feed)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodySize))
	if err != nil {
		f.recorder.RecordFetchFailure(feed.FeedURL, "read_body")
		ApplyBackoff(feed, fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error()), f.now())
		return f.store.UpdateFetchState(ctx, feed)
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		feed.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		feed.LastModified = lastMod
	}

	parsedFeed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		f.logger.Error("フィードのパースに失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		f.recorder.RecordParseFailure(feed.FeedURL)
		ApplyParseFailure(feed, err.Error(), f.config.Interval, f.now())
		f.saveState(ctx, feed)
		return nil // パース失敗はカウントして継続
	}

	if parsedFeed.Title != "" {
		feed.Title = parsedFeed.Title
	}

	parsedItems := convertGofeedItems(parsedFeed.Items)
	saved, err := f.saveItems(ctx, feed.ID, parsedItems)
	if err != nil {
		f.logger.Error("読み物記事の保存に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
		ApplyBackoff(feed, fmt.Sprintf("記事の保存に失敗: %s", err.Error()), f.now())
		f.saveState(ctx, feed)
		return err
	}
	f.recorder.RecordItemsUpserted(saved)
	f.recorder.RecordFetchSuccess(feed.FeedURL)

	ApplySuccess(feed, f.config.Interval, f.now())
	if err := f.store.UpdateFetchState(ctx, feed); err != nil {
		f.logger.Error("フィード状態の更新に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
		return err
	}

	f.logger.Info("読み物フィードの取得が完了しました",
		slog.String("feed_id", feed.ID),
		slog.String("feed_url", feed.FeedURL),
		slog.Int("items_saved", saved),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// saveItems は記事本文をサニタイズして抜粋を生成し、1件ずつ保存する。
func (f *Fetcher) saveItems(ctx context.Context, feedID string, items []model.ParsedReadingItem) (int, error) {
	now := f.now()
	saved := 0
	for _, p := range items {
		summary := f.sanitizer.Sanitize(p.Summary)
		item := &model.ReadingItem{
			FeedID:      feedID,
			GUID:        p.GUID,
			Title:       p.Title,
			Link:        p.Link,
			Summary:     summary,
			Excerpt:     reading.Excerpt(summary, f.config.ExcerptLength),
			PublishedAt: p.PublishedAt,
			FetchedAt:   now,
			CreatedAt:   now,
		}
		if err := f.store.UpsertItem(ctx, item); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

// saveState はフィード状態を保存する。失敗はログのみ。
func (f *Fetcher) saveState(ctx context.Context, feed *model.ReadingFeed) {
	if err := f.store.UpdateFetchState(ctx, feed); err != nil {
		f.logger.Error("フィード状態の更新に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
	}
}

// convertGofeedItems はgofeedの記事をmodel.ParsedReadingItemに変換する。
// GUIDもリンクも無い記事は重複排除できないため除外する。
func convertGofeedItems(items []*gofeed.Item) []model.ParsedReadingItem {
	parsed := make([]model.ParsedReadingItem, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		p := model.ParsedReadingItem{
			GUID:    strings.TrimSpace(item.GUID),
			Title:   strings.TrimSpace(item.Title),
			Link:    strings.TrimSpace(item.Link),
			Summary: item.Description,
		}
		if p.Summary == "" {
			p.Summary = item.Content
		}

		// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
		if p.Link == "" && (strings.HasPrefix(p.GUID, "http://") || strings.HasPrefix(p.GUID, "https://")) {
			p.Link = p.GUID
		}
		if p.GUID == "" {
			p.GUID = p.Link
		}
		if p.GUID == "" {
			continue
		}
		if p.Title == "" {
			p.Title = p.Link
		}

		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			p.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			p.PublishedAt = &t
		}

		parsed = append(parsed, p)
	}

	return parsed
}
