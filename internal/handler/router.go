package handler

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/loandesk/internal/apiclient"
	"github.com/hitoshi/loandesk/internal/metrics"
	"github.com/hitoshi/loandesk/internal/middleware"
	"github.com/hitoshi/loandesk/internal/view"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ローンAPI（Cookieを持たないベースのクライアント）
	API    *apiclient.Client
	NewAPI APIFactory // nilの場合はDefaultAPIFactory

	// 画面
	View     *view.Renderer
	Flash    *FlashStore
	Uploader ImageUploader

	// ミドルウェア依存
	Cookie            middleware.CookieConfig
	CSRF              middleware.CSRFConfig
	ProtectedPrefixes []string
	CORSAllowedOrigin string
	TrustedProxies    []netip.Prefix // 空の場合は転送ヘッダーを信頼しない
	RateLimiter       *middleware.RateLimiter

	// メトリクス（nilの場合は /metrics を公開しない）
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// NewRouter は全画面とAPIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestID → Logging → Status(metrics) → Recovery → SecurityHeaders
//	→ CSRF → Guard → RateLimit(General)
//
// /health と /metrics はCSRF以降のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRealIPMiddleware(deps.TrustedProxies))
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(metrics.NewStatusMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())

	pageDeps := PageDeps{
		View:   deps.View,
		NewAPI: deps.NewAPI,
		Flash:  deps.Flash,
		Cookie: deps.Cookie,
		Logger: logger,
	}

	var loginRecorder LoginRecorder
	if deps.Metrics != nil {
		loginRecorder = deps.Metrics
	}

	homeHandler := NewHomeHandler(pageDeps)
	authHandler := NewAuthHandler(pageDeps, loginRecorder)
	dashboardHandler := NewDashboardHandler(pageDeps)
	customerHandler := NewCustomerHandler(pageDeps)
	loanHandler := NewLoanHandler(pageDeps, deps.Uploader)
	paymentHandler := NewPaymentHandler(pageDeps)
	overdueHandler := NewOverdueHandler(pageDeps)

	guard := middleware.NewGuard(deps.API, middleware.GuardConfig{
		Cookie:            deps.Cookie,
		ProtectedPrefixes: deps.ProtectedPrefixes,
	}, logger)

	r.NotFound(homeHandler.NotFound)
	r.MethodNotAllowed(homeHandler.MethodNotAllowed)

	// --- チェーン外のルート ---
	r.Get("/health", Health)
	if deps.Metrics != nil && deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 画面とセッションAPI ---
	// ミドルウェアスタック: CSRF → Guard → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(guard.Middleware)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/", homeHandler.Home)

		// 認証
		r.Get("/login", authHandler.LoginPage)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/changepassword", authHandler.ChangePasswordPage)
		r.Post("/changepassword", authHandler.ChangePassword)

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/", dashboardHandler.Dashboard)
			r.Get("/reports/summary.pdf", dashboardHandler.SummaryReport)

			// 顧客
			r.Get("/customers", customerHandler.ListCustomers)
			r.Get("/customers/{id}", customerHandler.GetCustomer)

			// ローン
			r.Get("/active-loans", loanHandler.ActiveLoans)
			r.Post("/active-loans/{id}", loanHandler.UpdateActiveLoan)
			r.Get("/loans/{id}", loanHandler.GetLoan)
			r.Get("/add-loan", loanHandler.AddLoanPage)
			r.Post("/add-loan", loanHandler.AddLoan)

			// 返済
			r.Get("/pay-installments", paymentHandler.PayInstallmentsPage)
			r.Post("/pay-installments", paymentHandler.PayInstallment)

			// 延滞
			r.Get("/overdue", overdueHandler.ListOverdue)
			r.Post("/overdue/{id}/installments", overdueHandler.PayInstallment)
			r.Post("/overdue/{id}/clear", overdueHandler.Clear)

			// 旧画面（alias / arrears）
			r.Get("/arrears", permanentRedirect(overduePath))
			r.Get("/aliases", permanentRedirect(overduePath))
		})

		// 旧パス
		r.Get("/loans", permanentRedirect(activeLoansPath))
		r.Get("/admin", permanentRedirect(dashboardPath))

		// JSON API
		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))
			r.Get("/session", authHandler.Session)
			r.Post("/session/refresh", authHandler.RefreshSession)
		})
	})

	return r
}
