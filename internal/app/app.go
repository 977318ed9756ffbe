package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/fitauth/internal/auth"
	"github.com/hitoshi/fitauth/internal/config"
	"github.com/hitoshi/fitauth/internal/database"
	"github.com/hitoshi/fitauth/internal/handler"
	"github.com/hitoshi/fitauth/internal/idp"
	"github.com/hitoshi/fitauth/internal/logger"
	"github.com/hitoshi/fitauth/internal/metrics"
	"github.com/hitoshi/fitauth/internal/middleware"
	"github.com/hitoshi/fitauth/internal/repository"
	"github.com/hitoshi/fitauth/internal/user"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	level, err := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logger.SetupDefault(w, slog.LevelInfo)
		return nil, fmt.Errorf("failed to configure logger: %w", err)
	}
	logger.SetupDefault(w, level)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
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
		slog.String("store_driver", cfg.StoreDriver),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openStore は設定されたドライバーでDBを開き、疎通確認後にプロフィールリポジトリを返す。
func openStore(cfg *config.Config) (*sql.DB, repository.ProfileRepository, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		db, err = database.OpenSQLite(cfg.SQLitePath)
	default:
		db, err = database.Open(cfg.DatabaseURL)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.StoreDriver == config.DriverSQLite {
		return db, repository.NewSQLiteProfileRepo(db), nil
	}
	return db, repository.NewPostgresProfileRepo(db), nil
}

// server はHTTPサーバーの構成要素をまとめたもの。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
}

// close はバックグラウンドのgoroutineを停止する。
func (s *server) close() {
	s.rateLimiter.Stop()
}

// newServer は全依存関係をワイヤリングしてルーターを構築する。
func newServer(cfg *config.Config, db repository.DBHealthChecker, profiles repository.ProfileRepository, log *slog.Logger, reg *prometheus.Registry) (*server, error) {
	collector := metrics.NewCollector(reg)

	// 1. IdPクライアント
	idpClient := idp.NewClient(&http.Client{}, log, collector, idp.Config{
		BaseURL:        cfg.IdPURL,
		ServiceRoleKey: cfg.IdPServiceRoleKey,
		AnonKey:        cfg.IdPAnonKey,
		AdminTimeout:   cfg.IdPAdminTimeout,
		LoginTimeout:   cfg.IdPLoginTimeout,
	})

	// 2. ドメインサービス
	verifier, err := auth.NewTokenVerifier(cfg.JWTSecret, cfg.JWTAlgorithm, profiles, collector)
	if err != nil {
		return nil, fmt.Errorf("failed to create token verifier: %w", err)
	}
	provisioner := auth.NewProvisioner(idpClient, profiles, auth.NewBcryptHasher(cfg.BcryptCost), log, collector)
	sessions := auth.NewSessionIssuer(idpClient, profiles, log, collector)
	userService := user.NewService(profiles)

	// 3. ルーター
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitAuth))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             log,
		StatusRecorder:     collector,
		TokenVerifier:      verifier,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        rl,

		Registrar: provisioner,
		Login:     sessions,
		Profiles:  userService,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),
	})

	return &server{handler: router, rateLimiter: rl}, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, profiles, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクスレジストリ
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// 3. ワイヤリング
	srv, err := newServer(cfg, db, profiles, slog.Default(), reg)
	if err != nil {
		return err
	}
	defer srv.close()

	// 4. HTTPサーバーの起動
	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreDriver == config.DriverSQLite {
		slog.Info("running database migrations", slog.String("sqlite_path", cfg.SQLitePath))
		if err := database.RunSQLiteMigrations(cfg.SQLitePath); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	} else {
		slog.Info("running database migrations",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	slog.Info("database migrations completed successfully")
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
