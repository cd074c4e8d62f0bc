package reading

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/learnhub/internal/model"
)

const (
	// DefaultListLimit は一覧取得件数の既定値。
	DefaultListLimit = 20
	// MaxListLimit は一覧取得件数の上限。
	MaxListLimit = 100
)

// Store はServiceが利用する永続化操作。
type Store interface {
	EnsureFeed(ctx context.Context, feedURL string) (*model.ReadingFeed, error)
	ListRecent(ctx context.Context, limit int) ([]*model.ReadingItem, error)
}

// Item は読み物一覧のAPIレスポンス要素。
type Item struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Summary     string     `json:"summary"`
	Excerpt     string     `json:"excerpt"`
	PublishedAt *time.Time `json:"published_at"`
}

// Service は読み物リストのサービス層。
type Service struct {
	store    Store
	resolver FeedResolver
}

// FeedResolver は設定されたURLを取得対象のフィードURLに解決する。
type FeedResolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// Option はServiceの任意設定。
type Option func(*Service)

// WithResolver は登録前にURLをフィードURLへ解決するResolverを設定する。
func WithResolver(r FeedResolver) Option {
	return func(s *Service) { s.resolver = r }
}

// NewService はServiceを生成する。
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterFeeds は設定されたフィードURLを登録する。登録済みのURLはそのまま。
// 空のURLは無視し、登録できたフィード数を返す。
// Resolverがある場合、解決できなかったURLは警告を出してスキップする。
func (s *Service) RegisterFeeds(ctx context.Context, feedURLs []string) (int, error) {
	registered := 0
	for _, raw := range feedURLs {
		feedURL := strings.TrimSpace(raw)
		if feedURL == "" {
			continue
		}
		if s.resolver != nil {
			resolved, err := s.resolver.Resolve(ctx, feedURL)
			if err != nil {
				slog.Warn("読み物フィードを解決できませんでした",
					slog.String("url", feedURL),
					slog.String("error", err.Error()),
				)
				continue
			}
			feedURL = resolved
		}
		if _, err := s.store.EnsureFeed(ctx, feedURL); err != nil {
			return registered, fmt.Errorf("フィード %s の登録に失敗しました: %w", feedURL, err)
		}
		registered++
	}
	slog.Info("読み物フィードを登録しました", slog.Int("feed_count", registered))
	return registered, nil
}

// ListRecent は新しい順に読み物を返す。limitは1〜MaxListLimitに丸める。
func (s *Service) ListRecent(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("読み物一覧の取得に失敗しました: %w", err)
	}

	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, Item{
			ID:          r.ID,
			Title:       r.Title,
			Link:        r.Link,
			Summary:     r.Summary,
			Excerpt:     r.Excerpt,
			PublishedAt: r.PublishedAt,
		})
	}
	return items, nil
}
