package fetch

import (
	"fmt"
	"time"

	"github.com/hitoshi/learnhub/internal/model"
)

// FetchResult はHTTPステータスコードに基づくフェッチ結果の分類。
type FetchResult int

const (
	// FetchResultOK はフェッチ成功（200）。
	FetchResultOK FetchResult = iota
	// FetchResultNotModified はコンテンツ未変更（304）。
	FetchResultNotModified
	// FetchResultStop はフェッチ停止が必要なステータス（404/410/401/403）。
	FetchResultStop
	// FetchResultBackoff はバックオフが必要なステータス（429/5xx）。
	FetchResultBackoff
	// FetchResultUnknown は未知のステータスコード。
	FetchResultUnknown
)

const (
	// initialBackoff は指数バックオフの初回遅延（30分）。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（12時間）。
	maxBackoff = 12 * time.Hour
	// parseFailureThreshold はパース失敗によるフェッチ停止の閾値。
	parseFailureThreshold = 10
)

// ClassifyHTTPStatus はHTTPステータスコードをフェッチ結果に分類する。
func ClassifyHTTPStatus(statusCode int) FetchResult {
	switch {
	case statusCode == 200:
		return FetchResultOK
	case statusCode == 304:
		return FetchResultNotModified
	case statusCode == 404 || statusCode == 410:
		return FetchResultStop
	case statusCode == 401 || statusCode == 403:
		return FetchResultStop
	case statusCode == 429:
		return FetchResultBackoff
	case statusCode >= 500:
		return FetchResultBackoff
	default:
		return FetchResultUnknown
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// ApplyStop は読み物フィードの取得を停止する。
func ApplyStop(feed *model.ReadingFeed, reason string) {
	feed.FetchStatus = model.FetchStatusStopped
	feed.LastError = reason
}

// ApplyBackoff は連続エラー回数をインクリメントし、指数バックオフで次回取得日時を設定する。
func ApplyBackoff(feed *model.ReadingFeed, reason string, now time.Time) {
	feed.ConsecutiveErrors++
	feed.LastError = reason
	feed.NextFetchAt = now.Add(CalculateBackoff(feed.ConsecutiveErrors - 1))
}

// ApplySuccess は取得成功時にエラー状態をリセットし、interval後を次回取得日時とする。
func ApplySuccess(feed *model.ReadingFeed, interval time.Duration, now time.Time) {
	feed.ConsecutiveErrors = 0
	feed.LastError = ""
	feed.NextFetchAt = now.Add(interval)
	fetchedAt := now
	feed.FetchedAt = &fetchedAt
}

// ApplyParseFailure はパース失敗を記録する。閾値に達した場合は取得を停止し、
// それ以外は通常の間隔で再試行する。
func ApplyParseFailure(feed *model.ReadingFeed, reason string, interval time.Duration, now time.Time) {
	feed.ConsecutiveErrors++
	feed.LastError = fmt.Sprintf("パース失敗 (%d回連続): %s", feed.ConsecutiveErrors, reason)
	feed.NextFetchAt = now.Add(interval)

	if feed.ConsecutiveErrors >= parseFailureThreshold {
		feed.FetchStatus = model.FetchStatusStopped
		feed.LastError = fmt.Sprintf("パース失敗が%d回連続したため取得を停止しました: %s", feed.ConsecutiveErrors, reason)
	}
}
