package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/learnhub/internal/auth"
	"github.com/hitoshi/learnhub/internal/config"
	"github.com/hitoshi/learnhub/internal/content"
	"github.com/hitoshi/learnhub/internal/cooldown"
	"github.com/hitoshi/learnhub/internal/database"
	"github.com/hitoshi/learnhub/internal/handler"
	"github.com/hitoshi/learnhub/internal/identity"
	"github.com/hitoshi/learnhub/internal/logger"
	"github.com/hitoshi/learnhub/internal/metrics"
	"github.com/hitoshi/learnhub/internal/middleware"
	"github.com/hitoshi/learnhub/internal/profile"
	"github.com/hitoshi/learnhub/internal/reading"
	"github.com/hitoshi/learnhub/internal/repository"
	"github.com/hitoshi/learnhub/internal/security"
	"github.com/hitoshi/learnhub/internal/worker/cleanup"
	fetchpkg "github.com/hitoshi/learnhub/internal/worker/fetch"
)

// cleanupInterval はクリーンアップジョブの実行間隔。
const cleanupInterval = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// .envファイルがあれば読み込み、JSON構造化ログをセットアップしてから環境変数のConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envの読み込み（既存の環境変数は上書きしない）
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", slog.String("error", err.Error()))
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		slog.Warn("invalid LOG_LEVEL, using info", slog.String("error", err.Error()))
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリとクールダウンストアの初期化
	profileRepo := repository.NewPostgresProfileRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	readingRepo := repository.NewPostgresReadingRepo(db)

	cooldownStore, closeStore := openCooldownStore(cfg.RedisURL)
	defer closeStore()

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	idp := identity.NewClient(identity.ClientConfig{
		BaseURL:    cfg.AuthURL,
		AnonKey:    cfg.AuthAnonKey,
		HTTPClient: &http.Client{Timeout: cfg.AuthTimeout},
		Logger:     slog.Default(),
	})
	var verifier *identity.TokenVerifier
	if cfg.AuthJWTSecret != "" {
		verifier = identity.NewTokenVerifier(cfg.AuthJWTSecret)
	}

	profileService := profile.NewService(profileRepo, cfg.MinAge)
	authService := auth.NewService(auth.ServiceDeps{
		Provider:      idp,
		Profiles:      profileService,
		Accounts:      profileRepo,
		SessionRepo:   sessionRepo,
		Cooldowns:     cooldown.NewManager(cooldownStore, cfg.CooldownSeconds, cooldown.WithLogger(slog.Default())),
		TokenVerifier: verifier,
		Recorder:      collector,
	}, auth.ServiceConfig{
		BaseURL:       cfg.BaseURL,
		SessionMaxAge: cfg.SessionMaxAge,
	})

	catalog, err := content.Load(security.NewGrammarSanitizer())
	if err != nil {
		return fmt.Errorf("failed to load content: %w", err)
	}
	readingService := reading.NewService(readingRepo)

	// 5. ルーターの構築
	// configのレート制限はreq/min単位なのでreq/secに変換する
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitUser > 0 {
		rateLimiterCfg.UserRate = rate.Limit(float64(cfg.RateLimitUser) / 60.0)
		rateLimiterCfg.UserBurst = cfg.RateLimitUser
	}
	if cfg.RateLimitAuth > 0 {
		rateLimiterCfg.AuthRate = rate.Limit(float64(cfg.RateLimitAuth) / 60.0)
		rateLimiterCfg.AuthBurst = cfg.RateLimitAuth
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,

		HealthChecker:   db,
		MetricsGatherer: registry,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ProfileService:   profileService,
		ProfileCompleter: authService,

		Catalog: catalog,
		Reading: readingService,
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// openCooldownStore はクールダウンの保存先を開く。
// REDIS_URLが未設定または接続できない場合はプロセス内メモリにフォールバックする。
// 戻り値の関数で接続を閉じる。
func openCooldownStore(redisURL string) (cooldown.Store, func()) {
	if redisURL == "" {
		slog.Info("cooldown store: memory")
		return cooldown.NewMemoryStore(), func() {}
	}

	client, err := database.OpenRedis(context.Background(), redisURL)
	if err != nil {
		slog.Warn("redis unavailable, falling back to memory cooldown store",
			slog.String("error", err.Error()),
		)
		return cooldown.NewMemoryStore(), func() {}
	}

	slog.Info("cooldown store: redis")
	return cooldown.NewRedisStore(client), func() { client.Close() }
}

// runWorker はワーカーモードで起動する。
// 設定された読み物フィードを登録し、フェッチスケジューラとクリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	readingRepo := repository.NewPostgresReadingRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	// 3. 読み物フィードの登録（サイトのURLはフィードURLに解決する）
	guard := security.NewFeedGuard(security.FeedGuardConfig{
		AllowedHosts: cfg.ReadingAllowedHosts,
	})
	readingService := reading.NewService(readingRepo, reading.WithResolver(reading.NewDiscoverer(guard)))
	registered, err := readingService.RegisterFeeds(ctx, cfg.ReadingFeedURLs)
	if err != nil {
		return fmt.Errorf("failed to register reading feeds: %w", err)
	}

	// 4. フェッチャーとスケジューラの初期化
	// ワーカーは/metricsを公開しないため、収集先は未登録のレジストリとする
	collector := metrics.NewCollector(prometheus.NewRegistry())
	fetcher := fetchpkg.NewFetcher(
		readingRepo, guard, security.NewSummarySanitizer(), collector, slog.Default(),
		fetchpkg.Config{
			Timeout:     cfg.FetchTimeout,
			MaxBodySize: cfg.FetchMaxSize,
			Interval:    cfg.FetchRefresh,
		},
	)
	scheduler := fetchpkg.NewScheduler(readingRepo, fetcher, slog.Default(), cfg.FetchMaxConcurrent)

	// 5. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, readingRepo, slog.Default(), cfg.ReadingRetentionDays)

	slog.Info("worker starting",
		slog.Int("reading_feeds", registered),
		slog.Duration("fetch_interval", cfg.FetchInterval),
		slog.Int("max_concurrent", cfg.FetchMaxConcurrent),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go cleanupJob.Start(ctx, cleanupInterval)

	// フェッチスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.FetchInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.Version(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
