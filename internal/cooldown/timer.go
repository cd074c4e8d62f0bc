// Package cooldown は再送系アクション（確認メール再送など）の連打を防ぐ
// カウントダウンゲートを提供する。
//
// 終了時刻は注入されたStoreに永続化されるため、プロセス再起動後も
// 残り時間から再開できる。これはUX上のデバウンスであり、セキュリティ制御ではない。
package cooldown

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Clock は現在時刻の取得を抽象化する。テストで時刻を固定するために使用する。
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock は実時間を返すClock。
var SystemClock Clock = systemClock{}

// Status はクールダウンの観測可能な状態。
type Status struct {
	SecondsLeft int  `json:"secondsLeft"`
	IsActive    bool `json:"isActive"`
}

// Option はTimer/Managerの生成オプション。
type Option func(*options)

type options struct {
	clock        Clock
	logger       *slog.Logger
	tickInterval time.Duration
}

// WithClock は時刻の取得元を差し替える。
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger はストアエラーの出力先ロガーを指定する。
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTickInterval はRunのティック間隔を変更する。テスト専用。
func WithTickInterval(d time.Duration) Option {
	return func(o *options) { o.tickInterval = d }
}

func buildOptions(opts []Option) options {
	o := options{
		clock:        SystemClock,
		logger:       slog.Default(),
		tickInterval: time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Timer は1つのキーに対するクールダウンのカウントダウン。
// 1キーにつきアクティブなウィンドウは高々1つで、Startの再呼び出しは後勝ち。
type Timer struct {
	key     string
	seconds int
	store   Store
	opts    options

	mu          sync.Mutex
	secondsLeft int
	active      bool
	end         int64 // このTimerが開始または再開したウィンドウの終了時刻（epochミリ秒）
}

// New はkeyのTimerを生成し、永続化された終了時刻があれば残り時間から再開する。
// 終了時刻が過去の場合は古いエントリを削除し、非アクティブとして開始する。
// secondsはStartで開始するウィンドウの長さ（秒）。
func New(ctx context.Context, store Store, key string, seconds int, opts ...Option) *Timer {
	t := &Timer{
		key:     key,
		seconds: seconds,
		store:   store,
		opts:    buildOptions(opts),
	}
	t.resume(ctx)
	return t
}

// resume は永続化された終了時刻から状態を復元する。
func (t *Timer) resume(ctx context.Context) {
	end, ok, err := t.store.Get(ctx, t.key)
	if err != nil {
		t.opts.logger.Warn("failed to read cooldown",
			slog.String("key", t.key),
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok {
		return
	}

	remaining := end - t.opts.clock.Now().UnixMilli()
	if remaining > 0 {
		t.secondsLeft = int((remaining + 999) / 1000)
		t.active = true
		t.end = end
		return
	}

	// 期限切れのエントリは削除する
	t.deleteEntry(ctx)
}

// Start はクールダウンを開始し、終了時刻 now + seconds を永続化する。
// 直後のSecondsLeftはsecondsに等しく、IsActiveはtrueになる。
func (t *Timer) Start(ctx context.Context) {
	if t.seconds <= 0 {
		return
	}

	window := time.Duration(t.seconds) * time.Second
	end := t.opts.clock.Now().Add(window).UnixMilli()

	t.mu.Lock()
	t.secondsLeft = t.seconds
	t.active = true
	t.end = end
	t.mu.Unlock()

	if err := t.store.Set(ctx, t.key, end, window); err != nil {
		t.opts.logger.Warn("failed to persist cooldown",
			slog.String("key", t.key),
			slog.String("error", err.Error()),
		)
	}
}

// Tick は残り秒数を1減らし、新しい残り秒数を返す。
// 0に達すると非アクティブになり、自分のウィンドウが残っていれば永続化エントリを削除する。
// 他の呼び出しが新しいウィンドウを書き込んでいた場合は削除しない。
func (t *Timer) Tick(ctx context.Context) int {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return 0
	}
	if t.secondsLeft > 1 {
		t.secondsLeft--
		left := t.secondsLeft
		t.mu.Unlock()
		return left
	}
	t.secondsLeft = 0
	t.active = false
	end := t.end
	t.mu.Unlock()

	t.deleteOwnEntry(ctx, end)
	return 0
}

// Run は1秒ごとにTickを実行し、そのたびにonTickへ残り秒数を通知する。
// 非アクティブになるかctxがキャンセルされると戻る。
func (t *Timer) Run(ctx context.Context, onTick func(secondsLeft int)) {
	if !t.IsActive() {
		return
	}

	ticker := time.NewTicker(t.opts.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			left := t.Tick(ctx)
			if onTick != nil {
				onTick(left)
			}
			if left == 0 {
				return
			}
		}
	}
}

// SecondsLeft は残り秒数を返す。非アクティブの場合は0。
func (t *Timer) SecondsLeft() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.secondsLeft
}

// IsActive はクールダウン中かどうかを返す。
func (t *Timer) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active && t.secondsLeft > 0
}

// Status は現在の状態をまとめて返す。
func (t *Timer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{SecondsLeft: t.secondsLeft, IsActive: t.active && t.secondsLeft > 0}
}

// Key はTimerのキーを返す。
func (t *Timer) Key() string {
	return t.key
}

// deleteOwnEntry は保存された終了時刻がendと一致する場合のみエントリを削除する。
func (t *Timer) deleteOwnEntry(ctx context.Context, end int64) {
	stored, ok, err := t.store.Get(ctx, t.key)
	if err != nil {
		t.opts.logger.Warn("failed to read cooldown",
			slog.String("key", t.key),
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok || stored != end {
		return
	}
	t.deleteEntry(ctx)
}

func (t *Timer) deleteEntry(ctx context.Context) {
	if err := t.store.Delete(ctx, t.key); err != nil {
		t.opts.logger.Warn("failed to delete cooldown",
			slog.String("key", t.key),
			slog.String("error", err.Error()),
		)
	}
}
