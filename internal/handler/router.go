package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tsunagu/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// サービス
	FeedService  FeedServiceInterface
	PostService  PostServiceInterface
	StoryService StoryServiceInterface
	UserService  UserServiceInterface

	// Prometheusスクレイプ用ハンドラー
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → RateLimit(General)
//
// /health と /metrics は認証チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	feedHandler := NewFeedHandler(deps.FeedService)
	postHandler := NewPostHandler(deps.PostService)
	storyHandler := NewStoryHandler(deps.StoryService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ホームフィード
		r.Get("/api/feed", feedHandler.GetFeed)

		// 投稿管理
		r.Route("/api/posts", func(r chi.Router) {
			// POST /api/posts - 投稿作成（作成専用レート制限を追加）
			r.With(deps.RateLimiter.PostCreateMiddleware()).Post("/", postHandler.CreatePost)

			// 固定パスはパラメータルートより先に登録する
			r.Get("/trending", postHandler.ListTrendingPosts)
			r.Get("/nearby", postHandler.ListNearbyPosts)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", postHandler.GetPost)
				r.Patch("/", postHandler.UpdatePost)
				r.Delete("/", postHandler.DeletePost)
				r.Post("/publish", postHandler.PublishPost)
			})
		})

		// ストーリー管理
		r.Route("/api/stories", func(r chi.Router) {
			r.Get("/", storyHandler.ListStories)
			r.With(deps.RateLimiter.PostCreateMiddleware()).Post("/", storyHandler.CreateStory)
		})

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Patch("/me", userHandler.UpdateProfile)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", userHandler.GetProfile)
				r.Get("/posts", postHandler.ListUserPosts)
				r.Get("/followers", userHandler.ListFollowers)
				r.Get("/following", userHandler.ListFollowing)
				r.Post("/follow", userHandler.Follow)
				r.Delete("/follow", userHandler.Unfollow)
			})
		})
	})

	return r
}
