package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/learnhub/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	UserRate        rate.Limit    // ログイン済みAPIのユーザーごとのレート（req/sec）
	UserBurst       int           // ログイン済みAPIのバーストサイズ
	AuthRate        rate.Limit    // 認証系エンドポイントのIPごとのレート（req/sec）
	AuthBurst       int           // 認証系エンドポイントのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// ログイン済みAPI 120 req/min/user、認証系 20 req/min/IP。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		UserRate:        rate.Limit(120.0 / 60.0),
		UserBurst:       120,
		AuthRate:        rate.Limit(20.0 / 60.0),
		AuthBurst:       20,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyedLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterBucket はキー（ユーザーIDやIP）ごとのリミッター集合。
type limiterBucket struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*keyedLimiter
}

func newLimiterBucket(limit rate.Limit, burst int) *limiterBucket {
	return &limiterBucket{limit: limit, burst: burst, limiters: make(map[string]*keyedLimiter)}
}

// allow はキーのリミッターからトークンを1つ消費できるかを返す。
func (b *limiterBucket) allow(key string, now time.Time) bool {
	b.mu.Lock()
	kl, ok := b.limiters[key]
	if !ok {
		kl = &keyedLimiter{limiter: rate.NewLimiter(b.limit, b.burst)}
		b.limiters[key] = kl
	}
	kl.lastAccess = now
	b.mu.Unlock()
	return kl.limiter.AllowN(now, 1)
}

func (b *limiterBucket) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.limiters)
}

// evict は最終アクセスからttlを超えたエントリを削除する。
func (b *limiterBucket) evict(now time.Time, ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, kl := range b.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(b.limiters, key)
		}
	}
}

// RateLimiter はログイン済みユーザーごとと、認証系エンドポイントのIPごとのレート制限を管理する。
// 認証系の制限は再送クールダウンとは独立で、総当たり攻撃への対策として働く。
type RateLimiter struct {
	config RateLimiterConfig
	users  *limiterBucket
	authIP *limiterBucket
	now    func() time.Time
	stopCh chan struct{}
	once   sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config: config,
		users:  newLimiterBucket(config.UserRate, config.UserBurst),
		authIP: newLimiterBucket(config.AuthRate, config.AuthBurst),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// UserMiddleware はログイン済みAPIのレート制限ミドルウェアを返す。
// リクエストコンテキストにユーザーIDが含まれている必要がある（SessionMiddlewareの後に配置）。
func (rl *RateLimiter) UserMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if !rl.users.allow(userID, rl.now()) {
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", "user"),
				)
				writeRateLimitResponse(w, rl.config.UserRate)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthAttemptMiddleware は認証系エンドポイントのIPごとのレート制限ミドルウェアを返す。
// クライアントIPはRemoteAddrから取得する（chiのRealIPミドルウェアの後に配置）。
func (rl *RateLimiter) AuthAttemptMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.authIP.allow(ip, rl.now()) {
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("limit_type", "auth"),
				)
				writeRateLimitResponse(w, rl.config.AuthRate)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// UserLimiterCount は現在管理されているユーザーごとのリミッター数を返す。
func (rl *RateLimiter) UserLimiterCount() int {
	return rl.users.len()
}

// AuthLimiterCount は現在管理されているIPごとのリミッター数を返す。
func (rl *RateLimiter) AuthLimiterCount() int {
	return rl.authIP.len()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := rl.now()
	rl.users.evict(now, ttl)
	rl.authIP.evict(now, ttl)
}

// clientIP はRemoteAddrからポートを除いたIPを返す。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Bạn thao tác quá nhanh. Vui lòng thử lại sau.",
		Category:   "system",
		Action:     "Đợi một lúc rồi thử lại.",
		RetryAfter: retryAfterSec,
	})
}
