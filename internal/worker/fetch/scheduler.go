// Package fetch は読み物フィードのバックグラウンド取得処理を提供する。
// スケジューラ、フェッチャー、リトライ/バックオフ戦略を含む。
package fetch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/learnhub/internal/model"
)

// FeedFetcherService はフィードフェッチの実行インターフェース。
type FeedFetcherService interface {
	// Fetch は指定フィードを取得し、結果に応じてフィード状態を更新する。
	Fetch(ctx context.Context, feed *model.ReadingFeed) error
}

// DueFeedLister は取得時刻を迎えたフィードの一覧を返す。
type DueFeedLister interface {
	ListDueForFetch(ctx context.Context) ([]*model.ReadingFeed, error)
}

// Scheduler は読み物フィード取得のスケジューリングと並列制御を行う。
// 一定間隔のティッカーで取得対象フィードを列挙し、
// semaphoreパターンで最大並列数を制御しながらフェッチを実行する。
type Scheduler struct {
	feeds          DueFeedLister
	fetcher        FeedFetcherService
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	feeds DueFeedLister,
	fetcher FeedFetcherService,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		feeds:          feeds,
		fetcher:        fetcher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start はintervalごとのティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("読み物取得スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("読み物取得スケジューラを停止しました")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// CycleResult は1回の取得サイクルの集計結果。
type CycleResult struct {
	Feeds  int
	Failed int
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("取得サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は取得対象フィードを1回列挙し、並列で取得を実行する。
// コンテキストがキャンセルされた場合は未着手のフィードを取得せずに戻る。
func (s *Scheduler) RunOnce(ctx context.Context) (CycleResult, error) {
	start := time.Now()

	feeds, err := s.feeds.ListDueForFetch(ctx)
	if err != nil {
		return CycleResult{}, err
	}
	if len(feeds) == 0 {
		s.logger.Info("取得対象の読み物フィードはありません")
		return CycleResult{}, nil
	}

	s.logger.Info("取得サイクルを開始します", slog.Int("feed_count", len(feeds)))

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup
	var failed atomic.Int64
	dispatched := 0

dispatch:
	for _, feed := range feeds {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}
		dispatched++
		wg.Add(1)

		go func(f *model.ReadingFeed) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.fetcher.Fetch(ctx, f); err != nil {
				failed.Add(1)
				s.logger.Error("読み物フィードの取得に失敗しました",
					slog.String("feed_id", f.ID),
					slog.String("feed_url", f.FeedURL),
					slog.String("error", err.Error()),
				)
			}
		}(feed)
	}

	wg.Wait()

	result := CycleResult{Feeds: dispatched, Failed: int(failed.Load())}
	s.logger.Info("取得サイクルが完了しました",
		slog.Int("feed_count", result.Feeds),
		slog.Int("failed", result.Failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result, ctx.Err()
}
