package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/learnhub/internal/metrics"
	"github.com/hitoshi/learnhub/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer // nilの場合は/metricsを公開しない

	// 認証（セッション検証とゲート判定も兼ねる）
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// プロフィール
	ProfileService   ProfileServiceInterface
	ProfileCompleter ProfileCompleter

	// 学習コンテンツ
	Catalog ContentCatalog
	Reading ReadingLister
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → CSRF
//	  公開ルート:           AuthAttempt(認証フォームのみ)
//	  セッション必須ルート: Session → RateLimit(User)
//	  保護ページ:           Session → RateLimit(User) → Gate
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileService, deps.ProfileCompleter)
	contentHandler := NewContentHandler(deps.Catalog, deps.Reading)

	// --- 運用エンドポイント ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 認証不要のルート ---

	// メール内リンクのコールバック
	r.Get("/auth/callback", authHandler.Callback)

	r.Route("/api/auth", func(r chi.Router) {
		// 認証フォームはIP単位でレート制限する
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthAttemptMiddleware())
			r.Post("/signup", authHandler.SignUp)
			r.Post("/resend", authHandler.Resend)
			r.Post("/login", authHandler.Login)
			r.Post("/forgot-password", authHandler.ForgotPassword)
			r.Post("/reset-password", authHandler.ResetPassword)
		})

		r.Post("/logout", authHandler.Logout)
		r.Get("/session", authHandler.Session)
		r.Get("/cooldown", authHandler.CooldownStatus)
		r.Get("/cooldown/stream", authHandler.CooldownStream)
	})
	r.Get("/api/gate", authHandler.Gate)

	r.Get("/api/courses", contentHandler.ListCourses)
	r.Get("/api/resources", contentHandler.ListResources)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(User)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.AuthService))
		r.Use(deps.RateLimiter.UserMiddleware())

		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.Put("/", profileHandler.UpdateProfile)
			r.Get("/complete", profileHandler.CompletionStatus)
			r.Post("/complete", profileHandler.CompleteProfile)
		})

		// 保護ページ: プロフィール完了済みのユーザーのみ
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewGateMiddleware(deps.AuthService))

			r.Route("/api/resources/jpd316", func(r chi.Router) {
				r.Get("/", contentHandler.ListCategories)
				r.Get("/grammar", contentHandler.Grammar)
				r.Get("/{kind}", contentHandler.Flashcards)
			})
			r.Get("/api/resources/reading", contentHandler.ListReading)
		})
	})

	return r
}
