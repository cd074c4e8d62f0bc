package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/learnhub/internal/model"
)

// --- モック定義 ---

// mockFeedStore はDueFeedListerとFeedStoreのテスト用モック。
type mockFeedStore struct {
	mu sync.Mutex

	listDueForFetchFunc func(ctx context.Context) ([]*model.ReadingFeed, error)
	updateErr           error
	upsertErr           error

	updated []model.ReadingFeed
	items   []*model.ReadingItem
}

func (m *mockFeedStore) ListDueForFetch(ctx context.Context) ([]*model.ReadingFeed, error) {
	if m.listDueForFetchFunc != nil {
		return m.listDueForFetchFunc(ctx)
	}
	return nil, nil
}

func (m *mockFeedStore) UpdateFetchState(_ context.Context, feed *model.ReadingFeed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, *feed)
	return m.updateErr
}

func (m *mockFeedStore) UpsertItem(_ context.Context, item *model.ReadingItem) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
	return nil
}

func (m *mockFeedStore) lastUpdated(t *testing.T) model.ReadingFeed {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.updated) == 0 {
		t.Fatal("UpdateFetchState was not called")
	}
	return m.updated[len(m.updated)-1]
}

// mockFetcher はFeedFetcherServiceのテスト用モック。
type mockFetcher struct {
	fetchFunc func(ctx context.Context, feed *model.ReadingFeed) error
}

func (m *mockFetcher) Fetch(ctx context.Context, feed *model.ReadingFeed) error {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, feed)
	}
	return nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func dueFeeds(n int) []*model.ReadingFeed {
	feeds := make([]*model.ReadingFeed, n)
	for i := range feeds {
		feeds[i] = &model.ReadingFeed{
			ID:          fmt.Sprintf("feed-%d", i),
			FeedURL:     fmt.Sprintf("https://example.com/feed%d.xml", i),
			FetchStatus: model.FetchStatusActive,
		}
	}
	return feeds
}

// --- スケジューラのテスト ---

func TestNewScheduler_DefaultConcurrency(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler(&mockFeedStore{}, &mockFetcher{}, newTestLogger(&buf), 0)
	if s.maxConcurrency != 10 {
		t.Errorf("maxConcurrency = %d, want 10", s.maxConcurrency)
	}
}

func TestScheduler_RunOnce_FetchesDueFeeds(t *testing.T) {
	var buf bytes.Buffer
	store := &mockFeedStore{
		listDueForFetchFunc: func(ctx context.Context) ([]*model.ReadingFeed, error) {
			return dueFeeds(2), nil
		},
	}

	var mu sync.Mutex
	var fetchedIDs []string
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, feed *model.ReadingFeed) error {
			mu.Lock()
			fetchedIDs = append(fetchedIDs, feed.ID)
			mu.Unlock()
			return nil
		},
	}

	result, err := NewScheduler(store, fetcher, newTestLogger(&buf), 10).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() がエラーを返した: %v", err)
	}
	if len(fetchedIDs) != 2 {
		t.Errorf("取得されたフィード数 = %d, want 2", len(fetchedIDs))
	}
	if result.Feeds != 2 || result.Failed != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestScheduler_RunOnce_NoDueFeeds(t *testing.T) {
	var buf bytes.Buffer
	called := false
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, feed *model.ReadingFeed) error {
			called = true
			return nil
		},
	}

	result, err := NewScheduler(&mockFeedStore{}, fetcher, newTestLogger(&buf), 10).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() がエラーを返した: %v", err)
	}
	if called || result.Feeds != 0 {
		t.Error("取得対象が無い場合はFetchを呼ばないべき")
	}
	if !strings.Contains(buf.String(), "取得対象の読み物フィードはありません") {
		t.Errorf("log = %s", buf.String())
	}
}

func TestScheduler_RunOnce_ListError(t *testing.T) {
	var buf bytes.Buffer
	store := &mockFeedStore{
		listDueForFetchFunc: func(ctx context.Context) ([]*model.ReadingFeed, error) {
			return nil, errors.New("db down")
		},
	}

	if _, err := NewScheduler(store, &mockFetcher{}, newTestLogger(&buf), 10).RunOnce(context.Background()); err == nil {
		t.Fatal("一覧取得エラーを返すべき")
	}
}

func TestScheduler_RunOnce_ConcurrencyLimit(t *testing.T) {
	var buf bytes.Buffer
	store := &mockFeedStore{
		listDueForFetchFunc: func(ctx context.Context) ([]*model.ReadingFeed, error) {
			return dueFeeds(20), nil
		},
	}

	var current, peak, count atomic.Int32
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, feed *model.ReadingFeed) error {
			n := current.Add(1)
			defer current.Add(-1)
			count.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return nil
		},
	}

	if _, err := NewScheduler(store, fetcher, newTestLogger(&buf), 3).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() がエラーを返した: %v", err)
	}
	if count.Load() != 20 {
		t.Errorf("取得回数 = %d, want 20", count.Load())
	}
	if peak.Load() > 3 {
		t.Errorf("最大同時実行数 = %d, 3以下であるべき", peak.Load())
	}
}

func TestScheduler_RunOnce_FetchErrorDoesNotStopOthers(t *testing.T) {
	var buf bytes.Buffer
	store := &mockFeedStore{
		listDueForFetchFunc: func(ctx context.Context) ([]*model.ReadingFeed, error) {
			return dueFeeds(3), nil
		},
	}

	var count atomic.Int32
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, feed *model.ReadingFeed) error {
			count.Add(1)
			if feed.ID == "feed-1" {
				return errors.New("timeout")
			}
			return nil
		},
	}

	result, err := NewScheduler(store, fetcher, newTestLogger(&buf), 2).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() がエラーを返した: %v", err)
	}
	if count.Load() != 3 {
		t.Errorf("取得回数 = %d, want 3", count.Load())
	}
	if result.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Failed)
	}
	if !strings.Contains(buf.String(), "feed-1") {
		t.Error("失敗したフィードIDがログに出力されるべき")
	}
}

func TestScheduler_RunOnce_CancelledContextSkipsDispatch(t *testing.T) {
	var buf bytes.Buffer
	store := &mockFeedStore{
		listDueForFetchFunc: func(ctx context.Context) ([]*model.ReadingFeed, error) {
			return dueFeeds(5), nil
		},
	}

	var count atomic.Int32
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, feed *model.ReadingFeed) error {
			count.Add(1)
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewScheduler(store, fetcher, newTestLogger(&buf), 2).RunOnce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if count.Load() != 0 || result.Feeds != 0 {
		t.Errorf("キャンセル済みの場合は取得しないべき: count=%d result=%+v", count.Load(), result)
	}
}

func TestScheduler_Start_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	var cycles atomic.Int32
	store := &mockFeedStore{
		listDueForFetchFunc: func(ctx context.Context) ([]*model.ReadingFeed, error) {
			cycles.Add(1)
			return nil, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewScheduler(store, &mockFetcher{}, newTestLogger(&buf), 1).Start(ctx, time.Hour)
		close(done)
	}()

	// 起動直後の1回目のサイクルを待つ
	deadline := time.After(2 * time.Second)
	for cycles.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("初回サイクルが実行されなかった")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start がキャンセル後に終了しなかった")
	}
}
