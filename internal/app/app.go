// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/hitoshi/tsunagu/internal/cache"
	"github.com/hitoshi/tsunagu/internal/config"
	"github.com/hitoshi/tsunagu/internal/database"
	"github.com/hitoshi/tsunagu/internal/events"
	"github.com/hitoshi/tsunagu/internal/feed"
	"github.com/hitoshi/tsunagu/internal/geo"
	"github.com/hitoshi/tsunagu/internal/handler"
	"github.com/hitoshi/tsunagu/internal/logger"
	"github.com/hitoshi/tsunagu/internal/metrics"
	"github.com/hitoshi/tsunagu/internal/middleware"
	"github.com/hitoshi/tsunagu/internal/post"
	"github.com/hitoshi/tsunagu/internal/repository"
	"github.com/hitoshi/tsunagu/internal/security"
	"github.com/hitoshi/tsunagu/internal/story"
	"github.com/hitoshi/tsunagu/internal/user"
	"github.com/hitoshi/tsunagu/internal/worker/maintenance"
)

// mediaProbeTimeout はメディアURL到達性プローブのタイムアウト。
const mediaProbeTimeout = 10 * time.Second

// maintenanceInterval はデータ整理ジョブの実行間隔。
const maintenanceInterval = 1 * time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		// 設定読み込み前でもログを出せるようにデフォルトレベルで初期化する
		logger.SetupDefault(w, "info")
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

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

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
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

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// openRedis はRedis接続を開き、疎通を確認する。
func openRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// runServe はAPIサーバーモードで起動する。
// DB・Redis・NATS（任意）に接続し、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. DB接続
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. Redis接続（フィードキャッシュ）
	redisClient, err := openRedis(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	slog.Info("redis connection established")

	// 3. NATS接続（任意。未設定の場合は投稿イベントの発行を無効にする）
	var publisher events.PostEventPublisher
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Drain()
		publisher = events.NewNATSPublisher(nc)
		slog.Info("nats connection established")
	} else {
		slog.Info("NATS_URL is not set, post event publishing is disabled")
	}

	// 4. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	storyRepo := repository.NewPostgresStoryRepo(db)

	// 5. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 6. セキュリティ・外部サービスの初期化
	mediaGuard := security.NewMediaURLGuard(mediaProbeTimeout)
	sanitizer := security.NewContentSanitizer()
	geocoder := geo.NewGeocoder(
		&http.Client{Timeout: cfg.GeocoderTimeout},
		slog.Default(),
		cfg.GeocoderEndpoint,
	)

	// 7. ドメインサービスの初期化
	feedCache := cache.NewFeedCache(redisClient, cfg.FeedCacheTTL)
	feedService := feed.NewService(
		userRepo, postRepo, storyRepo,
		feedCache, collector,
		feed.Config{
			SourceLimit:      cfg.FeedSourceLimit,
			DefaultPage:      1,
			DefaultLimit:     cfg.FeedDefaultLimit,
			NearbyDistanceKM: cfg.NearbyDistanceKM,
			TrendingWindow:   cfg.TrendingWindow,
		},
		slog.Default(),
	)
	postService := post.NewService(
		postRepo, userRepo, sanitizer, mediaGuard, geocoder,
		publisher, collector, slog.Default(),
	)
	storyService := story.NewService(
		storyRepo, userRepo, mediaGuard, collector, cfg.StoryTTL, slog.Default(),
	)
	userService := user.NewService(userRepo, sanitizer, slog.Default())

	// 8. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.PostCreateRate = rate.Limit(float64(cfg.RateLimitPostCreate) / 60.0)
	rateLimiterCfg.PostCreateBurst = cfg.RateLimitPostCreate
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		FeedService:  feedService,
		PostService:  postService,
		StoryService: storyService,
		UserService:  userService,

		MetricsHandler: metrics.Handler(registry),
	})

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// post.createdイベントの購読によるフィードキャッシュ無効化と、
// データ整理ジョブ（失効ストーリー・期限切れセッション・予約投稿）を実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	rootCtx := context.Background()

	// 1. DB接続
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. Redis接続
	redisClient, err := openRedis(rootCtx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// 3. リポジトリとジョブの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	storyRepo := repository.NewPostgresStoryRepo(db)

	feedCache := cache.NewFeedCache(redisClient, cfg.FeedCacheTTL)
	maintenanceJob := maintenance.NewJob(storyRepo, sessionRepo, postRepo, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(rootCtx)
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	// 4. データ整理ジョブをバックグラウンドで起動
	go maintenanceJob.RunPeriodic(ctx, maintenanceInterval)

	// 5. イベント購読の起動
	// NATSが未設定の場合、ワーカーはデータ整理ジョブのみを実行する
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Drain()

		subscriber := events.NewSubscriber(nc, userRepo, feedCache, slog.Default())

		slog.Info("worker starting", slog.String("nats_url", cfg.NATSURL))
		if err := subscriber.Start(ctx); err != nil {
			return fmt.Errorf("subscriber stopped with error: %w", err)
		}
	} else {
		slog.Info("NATS_URL is not set, worker runs maintenance job only")
		<-ctx.Done()
	}

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
