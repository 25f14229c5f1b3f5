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

	"github.com/hitoshi/loandesk/internal/apiclient"
	"github.com/hitoshi/loandesk/internal/auth"
	"github.com/hitoshi/loandesk/internal/cloudinary"
	"github.com/hitoshi/loandesk/internal/config"
	"github.com/hitoshi/loandesk/internal/handler"
	"github.com/hitoshi/loandesk/internal/logger"
	"github.com/hitoshi/loandesk/internal/metrics"
	"github.com/hitoshi/loandesk/internal/middleware"
	"github.com/hitoshi/loandesk/internal/security"
	"github.com/hitoshi/loandesk/internal/view"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// SessionEnv はwhoamiサブコマンドが読み取るセッションCookieの値の環境変数名。
const SessionEnv = "LOANDESK_SESSION"

// uploadTimeout は顧客写真アップロードのタイムアウト。
const uploadTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを作り直す
	logger.SetupDefault(w, cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

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

	switch cmd {
	case CommandWhoami:
		return runWhoami(context.Background(), cfg, w, os.Getenv(SessionEnv))
	default:
		slog.Info("starting application",
			slog.String("command", string(cmd)),
			slog.String("env", cfg.AppEnv),
			slog.String("port", cfg.ServerPort),
			slog.String("api_url", cfg.APIURL),
		)
		return runServe(cfg)
	}
}

// Server は全依存関係をワイヤリングしたHTTPハンドラーと、その後始末をまとめたもの。
type Server struct {
	Handler http.Handler
	close   func()
}

// Close はバックグラウンドのgoroutineを停止する。
func (s *Server) Close() {
	if s.close != nil {
		s.close()
	}
}

// NewServer は設定から画面サーバーのハンドラーを構築する。
func NewServer(cfg *config.Config, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}

	// 1. メトリクス（プロセス単位のレジストリ）
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. ローンAPIクライアント（Cookieを持たないベース）
	api, err := apiclient.New(apiclient.Config{
		BaseURL:   cfg.APIURL,
		Timeout:   cfg.APITimeout,
		UserAgent: logger.ServiceName,
	},
		apiclient.WithLogger(log),
		apiclient.WithObserver(collector),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	// 3. 写真アップロード（外向き通信はSSRFガード付き）
	guard := security.NewOutboundGuard()
	uploader := cloudinary.NewUploader(cloudinary.Config{
		CloudName:    cfg.Cloudinary.CloudName,
		UploadPreset: cfg.Cloudinary.UploadPreset,
	}, guard.NewClient(uploadTimeout), guard, log)
	if !uploader.Enabled() {
		log.Info("photo upload disabled: cloudinary is not configured")
	}

	// 4. 画面
	renderer, err := view.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	cookie := middleware.CookieConfig{
		Name:   cfg.SessionCookieName,
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
		MaxAge: cfg.SessionMaxAge,
	}
	trustedProxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	if cfg.FlashSecret == "" {
		log.Warn("FLASH_SECRET is not set: using a random key, flash messages do not survive restarts")
	}
	flash := handler.NewFlashStore(handler.FlashConfig{
		Secret: []byte(cfg.FlashSecret),
		Secure: cfg.CookieSecure,
		Domain: cfg.CookieDomain,
	}, security.NewTextSanitizer())

	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)

	// 5. ルーター
	router := handler.NewRouter(&handler.RouterDeps{
		API:      api,
		View:     renderer,
		Flash:    flash,
		Uploader: uploader,

		Cookie: cookie,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrustedProxies:    trustedProxies,
		RateLimiter:       rateLimiter,

		Metrics:  collector,
		Gatherer: reg,
		Logger:   log,
	})

	return &Server{Handler: router, close: rateLimiter.Stop}, nil
}

// runServe は画面サーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	srv, err := NewServer(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer srv.Close()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.APITimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("console server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down console server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("console server stopped gracefully")
	return nil
}

// runWhoami はセッションCookieの値でローンAPIにセッションを確認し、ユーザーを出力する。
// ブラウザを介さずにAPIの接続とセッションの有効性を確かめるための運用コマンド。
func runWhoami(ctx context.Context, cfg *config.Config, w io.Writer, token string) error {
	if token == "" {
		return fmt.Errorf("%s is not set", SessionEnv)
	}

	api, err := apiclient.New(apiclient.Config{
		BaseURL:   cfg.APIURL,
		Timeout:   cfg.APITimeout,
		UserAgent: logger.ServiceName,
	}, apiclient.WithLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}

	client := api.WithCookies(&http.Cookie{Name: cfg.SessionCookieName, Value: token})
	session := auth.NewSession(client, slog.Default())
	if state := session.Resolve(ctx); state != auth.StateAuthenticated {
		return fmt.Errorf("session is not authenticated (state=%s)", state)
	}

	u := session.User()
	_, err = fmt.Fprintf(w, "%s (id=%d)\n", u.Username, u.ID)
	return err
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
